package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"ownership_experiment/pkg/config"
	"ownership_experiment/pkg/diag"
	"ownership_experiment/pkg/peer"
	"ownership_experiment/pkg/rc"
	"ownership_experiment/pkg/tree"
)

func main() {
	configPath := flag.String("config", "", "path to ownership.yaml (default: ./ownership.yaml if present)")
	verbose := flag.Bool("verbose", false, "print stack traces in diagnostics")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	diag.SetHandler(&diag.LogHandler{Verbose: cfg.Diag.Verbose || *verbose})

	for _, s := range []struct {
		name string
		run  func(*rc.Heap)
	}{
		{"strong cycle", strongCycle},
		{"weak back reference", weakBackReference},
		{"cleared child", clearedChild},
	} {
		h, err := rc.NewHeap(rc.WithConfig(cfg.Heap))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("== %s\n", s.name)
		s.run(h)

		var leak *rc.LeakError
		if err := h.Close(); errors.As(err, &leak) {
			fmt.Printf("heap: %d cell(s) leaked\n", leak.Live)
		} else {
			fmt.Println("heap: clean")
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOptional(".")
}

// strongCycle: the widget owns the action, whose callback owns the widget.
func strongCycle(h *rc.Heap) {
	widget := peer.NewIn(h)
	widget.Get().SetName("myWidget")
	action := peer.NewIn(h)
	action.Get().SetCallback(peer.CaptureStrong(widget, rename))
	widget.Get().SetPeer(action)

	wc, ac := widget.RefCounter(), action.RefCounter()
	trigger(widget)
	action.Drop()
	widget.Drop()
	fmt.Printf("after drop: widget=%d action=%d\n", wc.Count(), ac.Count())
}

// weakBackReference is strongCycle with the callback capturing the
// widget weakly.
func weakBackReference(h *rc.Heap) {
	widget := peer.NewIn(h)
	widget.Get().SetName("myWidget")
	action := peer.NewIn(h)
	action.Get().SetCallback(peer.CaptureWeak(widget.Weak(), rename))
	widget.Get().SetPeer(action)

	wc, ac := widget.RefCounter(), action.RefCounter()
	trigger(widget)
	action.Drop()
	widget.Drop()
	fmt.Printf("after drop: widget=%d action=%d\n", wc.Count(), ac.Count())
}

func clearedChild(h *rc.Heap) {
	t := tree.NewIn(h)
	defer t.Close()
	root := t.Root()
	defer root.Drop()

	node := root.Get().CreateChild("node1")
	defer node.Drop()
	root.Get().ClearChildren()

	_, hasParent := node.Get().Parent()
	fmt.Printf("%s: count=%d parent=%v tree=%v\n",
		node.Get().Name(), node.RefCounter().Count(), hasParent, node.Get().Tree() != nil)
}

func rename(o *peer.Object) error {
	o.SetName("newName")
	return nil
}

func trigger(widget *rc.Strong[peer.Object]) {
	if err := widget.Get().TriggerPeer(); err != nil {
		fmt.Fprintln(os.Stderr, "trigger:", err)
		return
	}
	fmt.Printf("triggered: widget name=%s\n", widget.Get().Name())
}
