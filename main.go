package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/aryanA101a/lulu/host"
	"github.com/aryanA101a/lulu/vm"
)

var quota = flag.Int("quota", vm.DefaultQuota, "instructions each VM runs per scheduling round")
var traceFile = flag.String("trace", "", "write an instruction and scheduling trace to this file")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] image-file1 ...\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Escape passes the keyboard to the next VM.")
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	log.SetOutput(io.Discard)
	var trace *log.Logger
	if *traceFile != "" {
		f, err := os.OpenFile(*traceFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening trace file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
		trace = log.New(f, "", log.Lmicroseconds)
	}

	images, err := readImages(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	keyboard := host.NewKeyboard(os.Stdin)
	defer keyboard.Close()

	scheduler := vm.NewScheduler(keyboard, vm.Config{
		Quota:  *quota,
		Output: os.Stdout,
		Trace:  trace,
	})
	for i, image := range images {
		if _, err := scheduler.AddMachine(func(m *vm.Machine) error {
			return m.LoadImage(bytes.NewReader(image))
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load image: %s\n", args[i])
			os.Exit(1)
		}
	}

	terminal, err := host.EnableRawMode(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = scheduler.Run(ctx)
	stop()
	terminal.Restore()

	for _, m := range scheduler.Machines() {
		if err := m.Console().Err(); err != nil {
			fmt.Fprintf(os.Stderr, "vm %d: writing output: %v\n", m.ID, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println()
		os.Exit(130)
	}
}

// readImages reads every image file concurrently, keeping argument order.
func readImages(paths []string) ([][]byte, error) {
	images := make([][]byte, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			image, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to load image: %s", path)
			}
			images[i] = image
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}
