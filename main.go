// ABOUTME: Entry point for the spicy-kvm host companion
// ABOUTME: Parses CLI flags and starts the application
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spicy-kvm/spicy-kvm-go/internal/app"
	"github.com/spicy-kvm/spicy-kvm-go/internal/ui"
)

var (
	bridgeAddr = flag.String("bridge", "", "Manual bridge address (skip mDNS)")
	name       = flag.String("name", "", "Client name (default: hostname-spicy-kvm)")
	backend    = flag.String("backend", "malgo", "Audio backend: malgo, oto, or portaudio")
	periodSize = flag.Int("period-size", 256, "Requested device period in frames")
	bufferMs   = flag.Int("buffer-latency", 12, "Extra target latency in milliseconds")
	sink       = flag.String("sink", "", "Playback sink identifier")
	source     = flag.String("source", "", "Capture source identifier")
	logFile    = flag.String("log-file", "spicy-kvm.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	clientName := *name
	if clientName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		clientName = fmt.Sprintf("%s-spicy-kvm", hostname)
	}

	quit := make(chan struct{})
	var quitOnce sync.Once
	requestQuit := func() { quitOnce.Do(func() { close(quit) }) }

	var tuiProg *tea.Program
	if useTUI {
		tuiProg = ui.Run(requestQuit)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	updateStatus := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	a, err := app.New(app.Config{
		BridgeAddr:    *bridgeAddr,
		Name:          clientName,
		Backend:       *backend,
		PeriodSize:    *periodSize,
		BufferLatency: *bufferMs,
		Sink:          *sink,
		Source:        *source,
		OnStatus:      updateStatus,
		Quit:          quit,
	})
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Let OS signals end the run loop alongside the TUI's quit key.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Printf("Shutdown signal received")
			requestQuit()
		case <-quit:
		}
	}()

	if err := a.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}

	if tuiProg != nil {
		tuiProg.Quit()
	}
	log.Printf("Stopped")
}
