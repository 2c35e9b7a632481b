package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with memory",
		Long:  "Read user messages from stdin, assemble memory context for each one, generate a reply, and record the completed turn for background observation. Exit with /quit or Ctrl-D.",
		Run:   runChat,
	}

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	eng, facts, generator, err := buildEngine(cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	defer facts.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("mnemo chat (/quit to exit)")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if ctx.Err() != nil {
			break
		}

		contextBlock, err := eng.AssembleContext(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: assemble context: %v\n", err)
			continue
		}

		prompt := fmt.Sprintf("%s\n\nRespond to the user's latest message.\n\nUSER: %s\nASSISTANT:", contextBlock, line)
		reply, err := generator.Complete(ctx, prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: generate reply: %v\n", err)
			continue
		}
		reply = strings.TrimSpace(reply)
		fmt.Println(reply)

		if _, err := eng.RecordTurn(line, reply); err != nil {
			fmt.Fprintf(os.Stderr, "error: record turn: %v\n", err)
		}
	}

	if n := eng.Outstanding(); n > 0 {
		fmt.Fprintf(os.Stderr, "waiting for %d background task(s)...\n", n)
	}
	if err := eng.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}
