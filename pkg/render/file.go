package render

import (
	"bufio"
	"os"
	"strings"

	"github.com/sessionrelay/tailwatch/pkg/events"
	"github.com/sessionrelay/tailwatch/pkg/transcript"
)

// RenderFile consumes path from byte 0 to EOF in one shot and returns the
// markdown a live subscriber would eventually see for the whole file. This
// is the single boundary function the out-of-scope offline replay CLI would
// call (§4.14) — no standalone replay binary is built here.
//
// Per the Replay-equals-live testable property (§8), this must produce the
// same markdown as consuming the file incrementally in batches and
// re-rendering after each one.
func RenderFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ctx := transcript.NewProcessingContext()
	consumer := NewConsumer()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ops := ctx.Process([]byte(line))
		applyOps(consumer, ops)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return Render(consumer.Blocks()), nil
}

// applyOps projects transcript ops onto a Consumer — shared by RenderFile
// and any test harness that needs the same live-vs-replay code path.
func applyOps(consumer *Consumer, ops []transcript.Op) {
	for _, op := range ops {
		switch op.Kind {
		case events.KindAddBlock:
			consumer.AddBlock(op.Block)
		case events.KindUpdateBlock:
			consumer.UpdateBlock(op.BlockID, op.Block)
		case events.KindClearAll:
			consumer.ClearAll()
		}
	}
}
