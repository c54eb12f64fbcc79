package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pocketlabs/pocket-core/internal/protocol"
)

var version = "0.1.0-dev"

// pocket-say submits text commands to a running pocketd over the bus, and can
// cancel whatever the assistant is doing or tail the session event feed.
func main() {
	var (
		server      string
		cancel      bool
		watch       bool
		showVersion bool
	)

	flag.StringVar(&server, "server", nats.DefaultURL, "Bus server URL")
	flag.BoolVar(&cancel, "cancel", false, "Cancel the active session instead of sending text")
	flag.BoolVar(&watch, "watch", false, "Print session events until interrupted")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	conn, err := nats.Connect(server, nats.Name("pocket-say"), nats.Timeout(5*time.Second))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", server, err)
		os.Exit(1)
	}
	defer conn.Close()

	switch {
	case cancel:
		err = conn.Publish(protocol.SubjectInputCancel, nil)
	case watch:
		err = runWatch(conn)
	default:
		text := strings.TrimSpace(strings.Join(flag.Args(), " "))
		if text == "" {
			fmt.Fprintln(os.Stderr, "usage: pocket-say [flags] <text>")
			os.Exit(2)
		}
		err = publishText(conn, text)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := conn.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func publishText(conn *nats.Conn, text string) error {
	payload, err := json.Marshal(protocol.TextInput{Text: text, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	return conn.Publish(protocol.SubjectInputText, payload)
}

func runWatch(conn *nats.Conn) error {
	sub, err := conn.Subscribe(protocol.SubjectSessionEvents, func(msg *nats.Msg) {
		var ev protocol.SessionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			fmt.Fprintf(os.Stderr, "bad event: %v\n", err)
			return
		}
		line := fmt.Sprintf("%s %-20s %s", ev.Timestamp.Format(time.TimeOnly), ev.Kind, ev.Text)
		if ev.Intent != "" {
			line = fmt.Sprintf("%s [%s]", line, ev.Intent)
		}
		fmt.Println(strings.TrimRight(line, " "))
	})
	if err != nil {
		return err
	}
	defer sub.Drain()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
	return nil
}
