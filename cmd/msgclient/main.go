package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/session"
	"github.com/zeusync/msgcomm/internal/injector"
)

var (
	src injector.Source

	rootCmd = &cobra.Command{
		Use:          "msgclient",
		Short:        "Reliable messaging client for a dispatcher",
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Connect, log on and log traffic until interrupted",
		RunE:  run,
	}

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Send one message and wait for its ack or reply",
		RunE:  send,
	}

	sendFlags struct {
		destType int32
		destID   int32
		topic    int32
		payload  string
		timeout  time.Duration
		store    bool
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&src.Path, "config", "c", "", "yaml configuration file")
	flags.StringVar(&src.Host, "host", "", "dispatcher host, overrides the config file")
	flags.IntVar(&src.Port, "port", 0, "dispatcher port, overrides the config file")
	flags.StringVar(&src.LogLevel, "log-level", "", "debug, info, warn, error or silent")

	sf := sendCmd.Flags()
	sf.Int32Var(&sendFlags.destType, "dest-type", 0, "destination client type")
	sf.Int32Var(&sendFlags.destID, "dest-id", 0, "destination client id")
	sf.Int32Var(&sendFlags.topic, "topic", 0, "topic for a broadcast")
	sf.StringVar(&sendFlags.payload, "payload", "", "message payload")
	sf.DurationVar(&sendFlags.timeout, "timeout", 0, "wait timeout, defaults to the configured wait_timeout")
	sf.BoolVar(&sendFlags.store, "store", false, "persist until acknowledged")

	rootCmd.AddCommand(runCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	app, cleanup, err := injector.InitializeApp(src)
	if err != nil {
		return err
	}
	defer cleanup()

	c, logger := app.Comm, app.Logger
	if _, err = c.OnStatusChanged(func(s session.StatusChange) {
		logger.Info("Status changed",
			log.String("state", s.State.String()),
			log.String("reason", s.Reason.String()),
			log.String("details", s.Details))
	}); err != nil {
		return err
	}
	if _, err = c.OnLogonComplete(func(v session.LogonComplete) {
		logger.Info("Logged on", log.Int("replayed", v.Replayed))
	}); err != nil {
		return err
	}
	if _, err = c.OnMessageReceived(func(h *protocol.Header) {
		logger.Info("Message received",
			log.Int32("key", h.MsgKey),
			log.String("type", h.MsgType.String()),
			log.String("from", h.Orig().String()),
			log.Int("size", len(h.Payload)))
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !c.Connect(ctx) {
		logger.Warn("Initial connect failed", log.String("addr", c.Addr()))
	}
	<-ctx.Done()
	m := app.Events.GetMetrics()
	logger.Info("Shutting down",
		log.Uint64("events_published", m.Published),
		log.Uint64("events_failed", m.Errors))
	c.Disconnect()
	return nil
}

func send(cmd *cobra.Command, _ []string) error {
	app, cleanup, err := injector.InitializeApp(src)
	if err != nil {
		return err
	}
	defer cleanup()

	c := app.Comm
	logged := make(chan struct{}, 1)
	if _, err = c.OnLogonComplete(func(session.LogonComplete) {
		select {
		case logged <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !c.Connect(ctx) {
		return fmt.Errorf("connect %s: %s", c.Addr(), c.Reason())
	}
	defer c.Disconnect()

	select {
	case <-logged:
	case <-time.After(10 * time.Second):
		return errors.New("logon not acknowledged")
	case <-ctx.Done():
		return ctx.Err()
	}

	cc := c.NewContext()
	defer func() { _ = cc.Close() }()

	sent, rx, err := cc.SendCommonAndWait(ctx, session.SendRequest{
		Type:           protocol.MsgTypeCustom,
		Payload:        []byte(sendFlags.payload),
		Topic:          sendFlags.topic,
		DestClientType: sendFlags.destType,
		DestClientID:   sendFlags.destID,
		Store:          sendFlags.store,
	}, sendFlags.timeout)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rx == nil {
		fmt.Fprintf(out, "sent %d, no answer\n", sent.MsgKey)
		return nil
	}
	fmt.Fprintf(out, "sent %d, got %s %d from %s: %q\n", sent.MsgKey, rx.MsgType, rx.MsgKey, rx.Orig(), rx.Payload)
	return nil
}
