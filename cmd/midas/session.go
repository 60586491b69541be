package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vango-go/midas/pkg/core/voice"
	"github.com/vango-go/midas/pkg/gateway/config"
	"github.com/vango-go/midas/pkg/gateway/server"
	"github.com/vango-go/midas/pkg/repair/checklist"
	"github.com/vango-go/midas/pkg/repair/session"
)

const replHelp = `Type a message to describe the problem, or:
  /scan         ask about the current camera frame
  /say <file>   send a recorded utterance
  /done         mark the current step complete and get the next one
  /steps        show the checklist
  /end          end the session
  /reset        start over with a fresh session
  /quit         leave`

func newSessionCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Run an interactive repair session in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			profile, err := config.LoadProfile(cfg.ProfilePath)
			if err != nil {
				return fmt.Errorf("load profile: %w", err)
			}
			ctx := cmd.Context()
			srv, err := server.Build(ctx, cfg, profile, newLogger(cfg, stderr))
			if err != nil {
				return err
			}
			defer srv.Close()
			srv.Start(ctx)

			r := newREPL(srv.Session(), cmd.InOrStdin(), stdout)
			return r.run(ctx)
		},
	}
}

type replStyles struct {
	user   lipgloss.Style
	agent  lipgloss.Style
	step   lipgloss.Style
	done   lipgloss.Style
	dim    lipgloss.Style
	failed lipgloss.Style
}

func defaultREPLStyles() replStyles {
	return replStyles{
		user:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5fafff")),
		agent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
		step:   lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd75f")),
		done:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")).Strikethrough(true),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		failed: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")),
	}
}

type repl struct {
	sess     *session.Session
	in       io.Reader
	out      io.Writer
	styles   replStyles
	readFile func(string) ([]byte, error)
}

func newREPL(sess *session.Session, in io.Reader, out io.Writer) *repl {
	return &repl{sess: sess, in: in, out: out, styles: defaultREPLStyles(), readFile: os.ReadFile}
}

// run grants permissions, starts the session and reads commands until EOF
// or /quit.
func (r *repl) run(ctx context.Context) error {
	if err := r.sess.GrantPermissions(); err != nil && !errors.Is(err, session.ErrInvalidTransition) {
		return err
	}
	if err := r.sess.Start(); err != nil {
		return err
	}
	fmt.Fprintln(r.out, r.styles.dim.Render("session "+r.sess.ID()+" started. /help for commands."))

	sc := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, r.styles.user.Render("> "))
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		quit, err := r.handle(ctx, strings.TrimSpace(sc.Text()))
		if err != nil {
			fmt.Fprintln(r.out, r.styles.failed.Render(err.Error()))
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.turn(ctx, func() (*session.Turn, error) { return r.sess.StartTurn(session.Typed(line)) })
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/scan":
		return false, r.turn(ctx, func() (*session.Turn, error) { return r.sess.StartTurn(session.FrameOnly()) })
	case "/say":
		if arg == "" {
			return false, errors.New("usage: /say <audio file>")
		}
		data, err := r.readFile(arg)
		if err != nil {
			return false, err
		}
		audio := voice.Audio{Data: data, MediaType: voice.MediaTypeForPath(arg)}
		return false, r.turn(ctx, func() (*session.Turn, error) { return r.sess.StartTurn(session.Spoken(audio)) })
	case "/done":
		return false, r.turn(ctx, r.sess.ConfirmStep)
	case "/steps":
		r.printChecklist(r.sess.Snapshot().Checklist)
	case "/end":
		if err := r.sess.EndSession(); err != nil {
			return false, err
		}
		snap := r.sess.Snapshot()
		fmt.Fprintf(r.out, "%s %d of %d steps completed.\n",
			r.styles.dim.Render("session ended."), checklist.CompletedCount(snap.Checklist), len(snap.Checklist))
	case "/reset":
		r.sess.ResetSession()
		if err := r.sess.Start(); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.styles.dim.Render("session "+r.sess.ID()+" started."))
	default:
		return false, fmt.Errorf("unknown command %s, /help lists them", cmd)
	}
	return false, nil
}

func (r *repl) turn(ctx context.Context, start func() (*session.Turn, error)) error {
	turn, err := start()
	if err != nil {
		return err
	}
	res, err := turn.Wait(ctx)
	if err != nil {
		return err
	}
	if turn.Kind == session.InputSpoken && res.UserText != "" {
		fmt.Fprintln(r.out, r.styles.dim.Render("heard: ")+res.UserText)
	}
	if res.AssistantText != "" {
		fmt.Fprintln(r.out, r.styles.agent.Render("midas: ")+res.AssistantText)
	}
	if res.Step != nil {
		n := len(r.sess.Snapshot().Checklist)
		fmt.Fprintln(r.out, r.styles.step.Render(fmt.Sprintf("+ step %d: %s", n, res.Step.Text)))
	}
	if res.Err != nil {
		return res.Err
	}
	return nil
}

func (r *repl) printChecklist(steps []checklist.Step) {
	if len(steps) == 0 {
		fmt.Fprintln(r.out, r.styles.dim.Render("no steps yet"))
		return
	}
	for i, s := range steps {
		line := fmt.Sprintf("%d. %s", i+1, s.Text)
		if s.Completed {
			fmt.Fprintln(r.out, "[x] "+r.styles.done.Render(line))
			continue
		}
		fmt.Fprintln(r.out, "[ ] "+line)
	}
}
