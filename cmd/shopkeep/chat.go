package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nugget/shopkeep/internal/workflow"
)

// runChat is a terminal conversation on one thread. Gated actions are
// shown with their arguments and wait for y/n. Logs go to stderr so the
// conversation stays readable.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return chatLoop(ctx, a.engine, stdin, stdout)
}

// conversation is the part of the engine the terminal uses.
type conversation interface {
	HandleMessage(ctx context.Context, m workflow.Message) (*workflow.Result, error)
	Resume(ctx context.Context, sig workflow.ResumeSignal) (*workflow.Result, error)
}

func chatLoop(ctx context.Context, engine conversation, stdin io.Reader, stdout io.Writer) error {
	in := bufio.NewScanner(stdin)
	var threadID string

	fmt.Fprintln(stdout, "Shopkeep. Gõ tin nhắn, /quit để thoát.")
	for {
		fmt.Fprint(stdout, "> ")
		if !in.Scan() {
			fmt.Fprintln(stdout)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		res, err := engine.HandleMessage(ctx, workflow.Message{ThreadID: threadID, Text: line})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(stdout, "! %v\n", err)
			continue
		}
		threadID = res.ThreadID

		for res.Interrupt != nil {
			printReply(stdout, res.Reply)
			decision, err := ask(in, stdout, res.Interrupt)
			if err != nil {
				return err
			}
			res, err = engine.Resume(ctx, workflow.ResumeSignal{
				ThreadID:   threadID,
				Decision:   decision,
				ToolCallID: res.Interrupt.ToolCall.ID,
			})
			if err != nil {
				return fmt.Errorf("resume %s: %w", threadID, err)
			}
		}
		printReply(stdout, res.Reply)
	}
}

func printReply(w io.Writer, reply string) {
	if reply != "" {
		fmt.Fprintf(w, "%s\n\n", reply)
	}
}

// ask shows a pending action and reads the decision. Anything but y or
// yes denies.
func ask(in *bufio.Scanner, w io.Writer, it *workflow.Interrupt) (workflow.Decision, error) {
	args, _ := json.Marshal(it.ToolCall.Function.Arguments)
	fmt.Fprintf(w, "[%s] %s %s\n", it.Node, it.ToolCall.Function.Name, args)
	if it.VerifiedProduct != nil {
		fmt.Fprintf(w, "  sản phẩm: %s (#%d)\n", it.VerifiedProduct.Name, it.VerifiedProduct.ID)
	}
	fmt.Fprint(w, "Approve? [y/N] ")
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", errors.New("input closed while waiting for a decision")
	}
	switch strings.ToLower(strings.TrimSpace(in.Text())) {
	case "y", "yes":
		return workflow.Approve, nil
	default:
		return workflow.Deny, nil
	}
}
