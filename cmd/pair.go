package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chanlink/internal/config"
	"github.com/nextlevelbuilder/chanlink/internal/session"
	"github.com/nextlevelbuilder/chanlink/internal/token"
	"github.com/nextlevelbuilder/chanlink/internal/verify"
	"github.com/nextlevelbuilder/chanlink/internal/webhook"
)

func pairCmd() *cobra.Command {
	var (
		name      string
		userID    string
		outPath   string
		noWebhook bool
	)

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Link a messaging channel by scanning a pairing code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if outPath == "" {
				outPath = config.NormalizeLabel(name) + "-pairing.png"
			}

			verifier := verify.New(app.gw)
			completer := app.svc.CompleterFor(userID, webhook.Metadata{UserID: userID})

			ctrl := session.NewController(
				session.Config{DisplayName: name, AutoWebhook: !noWebhook},
				token.Issue,
				app.provider,
				verifier,
				completer,
			)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			go renderEvents(ctrl.Events(), outPath)

			final, err := ctrl.Run(ctx)
			switch {
			case errors.Is(err, session.ErrSessionExhausted):
				fmt.Println("Pairing failed: too many expired codes. Run `chanlink pair` again to restart.")
				os.Exit(1)
			case err != nil:
				return err
			}

			if final.Status == session.StateCompleted {
				fmt.Printf("Channel linked. Phone: %s\n", final.PhoneID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name for the connection (required)")
	cmd.Flags().StringVar(&userID, "user", "local", "owning user id")
	cmd.Flags().StringVar(&outPath, "out", "", "where to write the pairing QR image (default <name>-pairing.png)")
	cmd.Flags().BoolVar(&noWebhook, "no-webhook", false, "stop at confirmation; configure the webhook later")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// renderEvents prints session transitions and refreshes the QR image file
// whenever a new artifact arrives.
func renderEvents(events <-chan session.Event, outPath string) {
	var lastState session.State
	for ev := range events {
		s := ev.Session

		if len(s.ArtifactPNG) > 0 && ev.State == session.StateCodeDisplayed && lastState != session.StateCodeDisplayed {
			if err := os.WriteFile(outPath, s.ArtifactPNG, 0600); err != nil {
				fmt.Printf("write artifact: %v\n", err)
			} else {
				fmt.Printf("Scan the code in %s with your device.\n", outPath)
			}
		}

		switch ev.State {
		case session.StateCodeDisplayed:
			if s.DisplayTimerRemaining > 0 && s.DisplayTimerRemaining%5 == 0 {
				fmt.Printf("  waiting for scan... %ds\n", s.DisplayTimerRemaining)
			}
		case session.StateVerifying:
			if ev.State != lastState {
				fmt.Printf("Checking pairing status (attempt %d/%d)...\n",
					s.VerificationAttempts+1, verify.MaxAttempts)
			}
		case session.StateRegenerating:
			fmt.Printf("Code expired, requesting a new one (%d/%d)...\n",
				s.RegenerationAttempts, session.MaxRegenerations)
		case session.StateConfirmed:
			fmt.Println("Device confirmed the pairing.")
		case session.StateWebhookConfiguring:
			fmt.Println("Registering webhook...")
		}
		lastState = ev.State
	}
}
