package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chanlink/internal/webhook"
)

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage linked channel connections",
	}

	cmd.AddCommand(connectionsListCmd())
	cmd.AddCommand(connectionsToggleCmd())
	cmd.AddCommand(connectionsDeleteCmd())

	return cmd
}

func connectionsListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			conns, err := app.svc.ListConnections(context.Background(), userID)
			if err != nil {
				return err
			}
			if len(conns) == 0 {
				fmt.Println("No connections.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPHONE\tACTIVE\tWEBHOOK\tCREATED")
			for _, c := range conns {
				name, phone := "-", "-"
				if c.DisplayName != nil {
					name = *c.DisplayName
				}
				if c.PhoneID != nil {
					phone = *c.PhoneID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\t%s\n",
					c.ID, name, phone, c.IsActive, c.WebhookConfigured,
					c.CreatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "owning user id")
	return cmd
}

func connectionsToggleCmd() *cobra.Command {
	var (
		userID string
		active bool
	)
	cmd := &cobra.Command{
		Use:   "toggle [id]",
		Short: "Activate or deactivate a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid connection id: %w", err)
			}
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			conn, err := app.svc.ToggleConnection(context.Background(), userID, id, active,
				webhook.Metadata{UserID: userID})
			if err != nil {
				return err
			}
			fmt.Printf("Connection %s active=%v webhook=%v\n", conn.ID, conn.IsActive, conn.WebhookConfigured)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "owning user id")
	cmd.Flags().BoolVar(&active, "active", true, "target active state")
	return cmd
}

func connectionsDeleteCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a connection (best-effort gateway cleanup)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid connection id: %w", err)
			}
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.svc.DeleteConnection(context.Background(), userID, id); err != nil {
				return err
			}
			fmt.Println("Connection deleted.")
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "owning user id")
	return cmd
}

// loadApp is the load-config-then-wire helper the one-shot commands share.
func loadApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(cfg)
}
