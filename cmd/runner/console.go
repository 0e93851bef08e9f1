package main

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fatih/color"

	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
	"aptoswarm/internal/worker"
)

// console prints executor events as colored lines
type console struct {
	mu  sync.Mutex
	out io.Writer

	wallet  *color.Color
	started *color.Color
	ok      *color.Color
	warn    *color.Color
	bad     *color.Color
}

func newConsole(out io.Writer) *console {
	return &console{
		out:     out,
		wallet:  color.New(color.FgCyan, color.Bold),
		started: color.New(color.FgBlue),
		ok:      color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed, color.Bold),
	}
}

func (c *console) handle(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := ev.Time.Format("15:04:05")
	w := ev.Wallet

	switch ev.Type {
	case events.WalletStarted:
		c.wallet.Fprintf(c.out, "%s [%d] %s %s started\n", ts, w.Index, w.Label(), w.Address)
	case events.WalletCompleted:
		c.statusColor(string(w.Status)).Fprintf(c.out, "%s [%d] %s %s\n", ts, w.Index, w.Label(), w.Status)
	case events.TaskStarted:
		c.started.Fprintf(c.out, "%s [%d] %s -> %s\n", ts, w.Index, w.Label(), taskName(ev.Task))
	case events.TaskCompleted:
		t := ev.Task
		line := fmt.Sprintf("%s [%d] %s <- %s %s", ts, w.Index, w.Label(), taskName(t), t.Status)
		if t.ResultHash != "" {
			line += " " + t.ResultHash
		}
		if t.ResultInfo != "" && t.Status != models.TaskStatusSuccess {
			line += " (" + t.ResultInfo + ")"
		}
		c.statusColor(string(t.Status)).Fprintln(c.out, line)
	}
}

func (c *console) statusColor(status string) *color.Color {
	switch status {
	case string(models.TaskStatusSuccess), string(models.WalletStatusCompleted):
		return c.ok
	case string(models.TaskStatusSkipped):
		return c.warn
	default:
		return c.bad
	}
}

func taskName(t *models.Task) string {
	if t.Virtual {
		return string(t.Kind) + " (reverse)"
	}
	return string(t.Kind)
}

// summary prints per-status totals of a finished run
func (c *console) summary(run models.Run, snap worker.RunSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wallet.Fprintf(c.out, "Run %s %s: %d wallets, %d/%d tasks completed\n",
		run.RunID, run.Status, len(snap.Wallets), snap.Completed, run.Tasks)

	statuses := make([]string, 0, len(snap.ByStatus))
	for s := range snap.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		c.statusColor(s).Fprintf(c.out, "  %-10s %d\n", s, snap.ByStatus[models.TaskStatus(s)])
	}
}
