package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/OpenExplorer/internal/output"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Endpoint flags
var (
	epName      string
	epType      string
	epURL       string
	epUsername  string
	epPassword  string
	epToken     string
	epTags      []string
	epTLSVerify bool
	epTest      bool
)

func newEndpointCmd() *cobra.Command {
	endpointCmd := &cobra.Command{
		Use:     "endpoint",
		Aliases: []string{"endpoints", "ep"},
		Short:   "Manage registered endpoints",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register an endpoint",
		Long: `Register an Arista device or CloudVision controller.

eapi and eos_rest endpoints authenticate with --username/--password;
cloudvision and telemetry endpoints use --token.`,
		Args: cobra.NoArgs,
		RunE: runEndpointAdd,
	}
	addEndpointFlags(addCmd)
	addCmd.Flags().BoolVar(&epTest, "test", false, "Run a connection test after registering")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("type")
	addCmd.MarkFlagRequired("url")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return out.Write(output.NewEndpoints(app.Endpoints()...))
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an endpoint and its health scorecard",
		Args:  cobra.ExactArgs(1),
		RunE:  runEndpointShow,
	}

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the fields of an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  runEndpointUpdate,
	}
	addEndpointFlags(updateCmd)

	deleteCmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove an endpoint; its query history is kept",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.DeleteEndpoint(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %s\n", args[0])
			return nil
		},
	}

	endpointCmd.AddCommand(addCmd, listCmd, showCmd, updateCmd, deleteCmd)
	return endpointCmd
}

func addEndpointFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&epName, "name", "", "Display name")
	cmd.Flags().StringVar(&epType, "type", "", "Endpoint type (eapi, cloudvision, eos_rest, telemetry)")
	cmd.Flags().StringVar(&epURL, "url", "", "Base URL (http, https, ws or wss)")
	cmd.Flags().StringVarP(&epUsername, "username", "u", "", "Username for basic authentication")
	cmd.Flags().StringVarP(&epPassword, "password", "p", "", "Password for basic authentication")
	cmd.Flags().StringVar(&epToken, "token", "", "Bearer token")
	cmd.Flags().StringSliceVar(&epTags, "tag", nil, "Tags (repeatable or comma separated)")
	cmd.Flags().BoolVar(&epTLSVerify, "tls-verify", false, "Verify the server certificate")
}

func runEndpointAdd(cmd *cobra.Command, args []string) error {
	ep := model.Endpoint{
		Name:      epName,
		Type:      model.EndpointType(strings.ToLower(epType)),
		URL:       epURL,
		Username:  epUsername,
		Password:  epPassword,
		Token:     epToken,
		Tags:      epTags,
		TLSVerify: epTLSVerify,
	}

	created, err := app.AddEndpoint(cmd.Context(), ep)
	if err != nil {
		return err
	}
	if err := out.Write(output.NewEndpoints(created)); err != nil {
		return err
	}

	if epTest {
		res, err := app.Test(cmd.Context(), created.ID)
		if err != nil {
			return err
		}
		return out.Write(output.TestResults{created.ID: res})
	}
	return nil
}

func runEndpointShow(cmd *cobra.Command, args []string) error {
	ep, err := app.Endpoint(args[0])
	if err != nil {
		return err
	}
	if err := out.Write(output.NewEndpoints(ep)); err != nil {
		return err
	}
	if dev, err := app.Device(ep.ID); err == nil {
		return out.Write(output.Inventory{dev})
	}
	return nil
}

// runEndpointUpdate applies only the flags given on the command line.
func runEndpointUpdate(cmd *cobra.Command, args []string) error {
	ep, err := app.Endpoint(args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		ep.Name = epName
	}
	if flags.Changed("type") {
		ep.Type = model.EndpointType(strings.ToLower(epType))
	}
	if flags.Changed("url") {
		ep.URL = epURL
	}
	if flags.Changed("username") {
		ep.Username = epUsername
	}
	if flags.Changed("password") {
		ep.Password = epPassword
	}
	if flags.Changed("token") {
		ep.Token = epToken
	}
	if flags.Changed("tag") {
		ep.Tags = epTags
	}
	if flags.Changed("tls-verify") {
		ep.TLSVerify = epTLSVerify
	}

	updated, err := app.UpdateEndpoint(cmd.Context(), ep)
	if err != nil {
		return err
	}
	return out.Write(output.NewEndpoints(updated))
}
