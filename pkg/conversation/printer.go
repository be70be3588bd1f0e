package conversation

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/agentapi"
)

// PrintTranscript writes messages in the order given: a blank line, the
// upper-cased role followed by a colon, then each text part on its own line.
// Non-text parts are skipped.
func PrintTranscript(w io.Writer, messages []agentapi.Message) error {
	bw := bufio.NewWriter(w)
	for _, msg := range messages {
		if _, err := fmt.Fprintf(bw, "\n%s:\n", strings.ToUpper(msg.Role)); err != nil {
			return err
		}
		for _, text := range msg.Texts() {
			if _, err := fmt.Fprintln(bw, text); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
