package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
)

var chatCmd = &cobra.Command{
	Use:   "chat <flow-file>",
	Short: "Talk to a flow from the terminal",
	Long: `Activates a flow document in a local engine and plays the sender side of the
conversation. Type a button number or its label to press it, /reset to drop the
session, /quit to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		project, _ := cmd.Flags().GetString("project")
		sender, _ := cmd.Flags().GetString("sender")
		plain, _ := cmd.Flags().GetBool("plain")

		interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		if !interactive {
			plain = true
		}

		g, err := file.LoadGraph(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		setup, err := createEngine(ctx, cfg, logger, engineOptions{Gateway: terminalGateway{}})
		if err != nil {
			return err
		}
		defer func() { _ = setup.Close() }()

		out := cmd.OutOrStdout()
		res, err := setup.Engine.Activate(ctx, project, g)
		if err != nil {
			for _, msg := range res.Errors {
				fmt.Fprintf(out, "  - %s\n", msg)
			}
			return err
		}

		if !plain {
			tui.PrintBanner(out)
		}
		fmt.Fprintf(out, "Flow active for project %q. Say something to start.\n", project)

		c := &chat{
			engine:  setup.Engine,
			printer: tui.NewPrinter(out, plain),
			out:     out,
			key:     domain.SessionKey{ProjectID: project, SenderID: sender},
			prompt:  interactive,
		}
		return c.run(ctx, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("project", "local", "Project the flow is activated for")
	chatCmd.Flags().String("sender", "terminal", "Sender id used for the session")
	chatCmd.Flags().Bool("plain", false, "Disable markdown rendering and colors")
}

// conversation is the part of the Engine the simulator drives.
type conversation interface {
	Handle(ctx context.Context, ev domain.InboundEvent) (runner.Result, error)
	DeleteSession(ctx context.Context, key domain.SessionKey) error
}

type chat struct {
	engine  conversation
	printer *tui.Printer
	out     io.Writer
	key     domain.SessionKey
	prompt  bool

	// Options of the last interactive message, for numbered replies.
	options []string
}

func (c *chat) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if c.prompt {
			fmt.Fprint(c.out, "you> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := c.engine.DeleteSession(ctx, c.key); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return err
			}
			c.options = nil
			fmt.Fprintln(c.out, "* session reset")
			continue
		}

		res, err := c.engine.Handle(ctx, c.event(line))
		if err != nil {
			if errors.Is(err, domain.ErrInputTooLarge) || errors.Is(err, domain.ErrInvalidUTF8) {
				fmt.Fprintf(c.out, "! %v\n", err)
				continue
			}
			return err
		}

		c.printer.Effects(res.Effects)
		c.printer.Status(res.Session)
		c.remember(res.Effects)
	}
}

// event turns a typed line into an inbound event. A number within the range of
// the last rendered options presses that button.
func (c *chat) event(line string) domain.InboundEvent {
	ev := domain.InboundEvent{
		ProjectID: c.key.ProjectID,
		SenderID:  c.key.SenderID,
		MessageID: uuid.NewString(),
		Text:      line,
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(c.options) {
		ev.ButtonSelectionID = domain.ButtonID(n-1, c.options[n-1])
		ev.Text = c.options[n-1]
	}
	return ev
}

func (c *chat) remember(effects []domain.Effect) {
	if len(effects) == 0 {
		return
	}
	c.options = nil
	for _, e := range effects {
		if e.Type == domain.EffectSendInteractive {
			c.options = e.Options
		}
	}
}

// terminalGateway acknowledges every send; the simulator prints effects itself.
type terminalGateway struct{}

func (terminalGateway) SendText(ctx context.Context, projectID, to, text string) (domain.DeliveryResult, error) {
	return domain.DeliveryResult{Delivered: true, MessageID: "local." + uuid.NewString()}, nil
}

func (terminalGateway) SendInteractive(ctx context.Context, projectID, to, text string, options []string) (domain.DeliveryResult, error) {
	return domain.DeliveryResult{Delivered: true, MessageID: "local." + uuid.NewString()}, nil
}
