// Package cli renders check results for the netcheck command line.
package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/smash64-online/netcheck/internal/checker"
	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/scheduler"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

// RenderResult prints a single check result followed by its metadata.
func RenderResult(w io.Writer, kind events.CheckKind, req checker.Request, res checker.Result) {
	fmt.Fprintln(w)

	tw := newTable(w, "Check", "Target", "Result", "Message")
	tw.Append([]string{
		kind.String(),
		fmt.Sprintf("%s:%d", req.Host, req.Port),
		outcome(res.Success),
		res.Message,
	})
	tw.Render()

	if len(res.Meta) == 0 {
		fmt.Fprintln(w)
		return
	}

	keys := make([]string, 0, len(res.Meta))
	for k := range res.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	meta := newTable(w, "Key", "Value")
	for _, k := range keys {
		meta.Append([]string{k, fmt.Sprintf("%v", res.Meta[k])})
	}
	meta.Render()
	fmt.Fprintln(w)
}

// RenderMonitor prints the latest result of every monitor target.
func RenderMonitor(w io.Writer, statuses []scheduler.TargetStatus) {
	fmt.Fprintln(w)
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No monitor targets checked.")
		return
	}

	tw := newTable(w, "Name", "Kind", "Target", "Result", "Message", "Checked")
	for _, st := range statuses {
		tw.Append([]string{
			st.Target.Name,
			st.Target.Kind,
			fmt.Sprintf("%s:%d", st.Target.Host, st.Target.Port),
			outcome(st.Result.Success),
			st.Result.Message,
			st.CheckedAt.Format(time.TimeOnly),
		})
	}
	tw.Render()
	fmt.Fprintln(w)
}

func outcome(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
