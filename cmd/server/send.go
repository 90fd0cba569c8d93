package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"walkmate-bot/internal/adapters/gateway"
	"walkmate-bot/internal/adapters/handler"
	"walkmate-bot/internal/core/domain"
)

var (
	sendTo string

	templateName   string
	templateLang   string
	templatePolicy string
	templateVars   string

	shipmentOrderID       string
	shipmentCases         string
	shipmentVehicle       string
	shipmentDriverName    string
	shipmentDriverContact string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a WhatsApp message from the shell",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if err := cfg.RequireWhatsApp(); err != nil {
			return err
		}
		sendTo = handler.NormalizeRecipient(sendTo)
		if sendTo == "" {
			return errors.New("--to is required")
		}
		return nil
	},
}

var sendTextCmd = &cobra.Command{
	Use:   "text <message>",
	Short: "Send a free-form text (only inside the 24h customer window)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newGateway().SendText(cmd.Context(), sendTo, strings.Join(args, " "))
		return printSendResult(cmd, result, err)
	},
}

var sendTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Send an approved template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if templateName == "" {
			return errors.New("--name is required")
		}
		lang := templateLang
		if lang == "" {
			lang = cfg.WhatsApp.TemplateLanguage
		}
		tmpl := domain.Template{
			Name:           templateName,
			LanguageCode:   lang,
			LanguagePolicy: templatePolicy,
			BodyParams:     handler.SplitVars(templateVars),
		}
		result, err := newGateway().SendTemplate(cmd.Context(), sendTo, tmpl)
		return printSendResult(cmd, result, err)
	},
}

var sendShipmentCmd = &cobra.Command{
	Use:   "shipment",
	Short: "Send the shipment_details template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl := domain.Template{
			Name:           handler.ShipmentTemplate,
			LanguageCode:   "en_US",
			LanguagePolicy: "deterministic",
			BodyParams: []string{
				shipmentOrderID,
				shipmentCases,
				shipmentVehicle,
				shipmentDriverName,
				shipmentDriverContact,
			},
		}
		result, err := newGateway().SendTemplate(cmd.Context(), sendTo, tmpl)
		return printSendResult(cmd, result, err)
	},
}

func init() {
	sendCmd.PersistentFlags().StringVar(&sendTo, "to", "", "recipient phone number in international format")

	sendTemplateCmd.Flags().StringVar(&templateName, "name", "", "template name")
	sendTemplateCmd.Flags().StringVar(&templateLang, "lang", "", "template language code (default TEMPLATE_LANG)")
	sendTemplateCmd.Flags().StringVar(&templatePolicy, "policy", "deterministic", "template language policy")
	sendTemplateCmd.Flags().StringVar(&templateVars, "vars", "", "comma separated body variables")

	sendShipmentCmd.Flags().StringVar(&shipmentOrderID, "order-id", "", "order id")
	sendShipmentCmd.Flags().StringVar(&shipmentCases, "cases", "", "number of cases")
	sendShipmentCmd.Flags().StringVar(&shipmentVehicle, "vehicle", "", "vehicle number")
	sendShipmentCmd.Flags().StringVar(&shipmentDriverName, "driver-name", "", "driver name")
	sendShipmentCmd.Flags().StringVar(&shipmentDriverContact, "driver-contact", "", "driver phone")
	for _, f := range []string{"order-id", "cases", "vehicle", "driver-name", "driver-contact"} {
		sendShipmentCmd.MarkFlagRequired(f)
	}

	sendCmd.AddCommand(sendTextCmd)
	sendCmd.AddCommand(sendTemplateCmd)
	sendCmd.AddCommand(sendShipmentCmd)
}

func newGateway() *gateway.WhatsAppClient {
	return gateway.NewWhatsAppClient(gateway.ClientConfig{
		BaseURL:     cfg.WhatsApp.BaseURL,
		APIVersion:  cfg.WhatsApp.APIVersion,
		PhoneID:     cfg.WhatsApp.PhoneID,
		AccessToken: cfg.WhatsApp.AccessToken,
		Timeout:     cfg.WhatsApp.Timeout,
	})
}

// printSendResult prints the provider body and fails on a non-2xx answer
func printSendResult(cmd *cobra.Command, result *domain.SendResult, err error) error {
	if result == nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(result.Body))
	if err != nil {
		var perr *domain.ProviderError
		if errors.As(err, &perr) {
			slog.Error("Provider rejected the message",
				"status", perr.StatusCode,
				"code", perr.Code,
				"detail", perr.Detail(),
			)
		}
		return err
	}
	slog.Info("Message accepted", "to", sendTo, "message_id", result.MessageID)
	return nil
}
