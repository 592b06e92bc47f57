package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/richinsley/comfy2go/client"
	"github.com/schollz/progressbar/v3"

	"wavebind/helpers"
	"wavebind/logger"
)

const defaultComfyPort = 8188

// queue prepares the task node for execution, submits the rewritten
// workflow to ComfyUI and follows it until it stops.
func (a *app) queue(ctx context.Context, args []string) error {
	opts, err := parseTaskArgs("queue", args)
	if err != nil {
		return err
	}
	if a.config.ComfyUi.Url == "" {
		return errors.New("comfyui.url is not configured")
	}
	if opts.clientID == "" {
		opts.clientID = a.config.ComfyUi.ClientId
	}

	s, err := a.newSession(ctx, opts)
	if err != nil {
		return err
	}
	if err := s.engine.Remember(s.nodeID); err != nil {
		return err
	}
	_, doc := s.engine.PrepareExecution(opts.clientID)

	data, err := doc.JSON()
	if err != nil {
		return err
	}
	f, err := os.CreateTemp("", "wavebind-*.json")
	if err != nil {
		return fmt.Errorf("failed to create workflow file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	host, port, err := comfyAddress(a.config.ComfyUi.Url, a.config.ComfyUi.Port)
	if err != nil {
		return err
	}
	logger.Info("Queueing task", "server", helpers.MakeUrlWithPort(a.config.ComfyUi.Url, a.config.ComfyUi.Port), "node", s.nodeID)

	c := client.NewComfyClient(host, port, nil)
	if !c.IsInitialized() {
		if err := c.Init(); err != nil {
			return fmt.Errorf("error initializing client: %w", err)
		}
	}

	workflow, _, err := c.NewGraphFromJsonFile(f.Name())
	if err != nil {
		return fmt.Errorf("error loading graph JSON: %w", err)
	}

	item, err := c.QueuePrompt(workflow)
	if err != nil {
		return fmt.Errorf("failed to queue prompt: %w", err)
	}

	return follow(ctx, item.Messages, func(output client.DataOutput) error {
		blob, err := c.GetImage(output)
		if err != nil {
			return fmt.Errorf("failed to get output: %w", err)
		}
		if err := os.WriteFile(output.Filename, *blob, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		logger.Info("Saved output", "file", output.Filename)
		return nil
	})
}

// follow consumes a queued prompt's messages until it stops, handing every
// media output to save.
func follow(ctx context.Context, messages <-chan client.PromptMessage, save func(client.DataOutput) error) error {
	var bar *progressbar.ProgressBar
	var currentNodeTitle string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("comfyui closed the message stream before the task stopped")
			}
			switch msg.Type {
			case "started":
				qm := msg.ToPromptMessageStarted()
				logger.Info("Start executing prompt", "prompt_id", qm.PromptID)
			case "executing":
				bar = nil
				qm := msg.ToPromptMessageExecuting()
				currentNodeTitle = qm.Title
				logger.Debug("Executing node", "node_id", qm.NodeID)
			case "progress":
				qm := msg.ToPromptMessageProgress()
				if bar == nil {
					bar = progressbar.Default(int64(qm.Max), currentNodeTitle)
				}
				_ = bar.Set(qm.Value)
			case "stopped":
				qm := msg.ToPromptMessageStopped()
				if qm.Exception != nil {
					return fmt.Errorf("execution stopped with exception: %s: %s", qm.Exception.ExceptionType, qm.Exception.ExceptionMessage)
				}
				logger.Info("Task finished")
				return nil
			case "data":
				qm := msg.ToPromptMessageData()
				for kind, outputs := range qm.Data {
					if kind != "images" && kind != "gifs" && kind != "video" && kind != "audio" {
						continue
					}
					for _, output := range outputs {
						if err := save(output); err != nil {
							return err
						}
					}
				}
			}
		}
	}
}

// comfyAddress splits the configured server into the host and port the
// ComfyUI client expects.
func comfyAddress(url, port string) (string, int, error) {
	host := strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
	host = strings.TrimSuffix(host, "/")
	if h, p, ok := strings.Cut(host, ":"); ok {
		host = h
		if port == "" {
			port = p
		}
	}
	if port == "" {
		return host, defaultComfyPort, nil
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, fmt.Errorf("invalid comfyui port %q: %w", port, err)
	}
	return host, n, nil
}
