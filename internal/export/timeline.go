package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

const (
	timelineWidth      = 1200
	timelineRowHeight  = 24
	timelineMarginTop  = 20
	timelineMarginLeft = 12
)

var statusColor = map[string]color.NRGBA{
	store.StatusOK:    {R: 0x2e, G: 0xa0, B: 0x4b, A: 0xff},
	store.StatusError: {R: 0xc0, G: 0x2f, B: 0x2f, A: 0xff},
	store.StatusUnset: {R: 0x94, G: 0x94, B: 0x94, A: 0xff},
}

// RenderTimelinePNG draws one horizontal bar per span, positioned by
// start_time/end_time and colored by status, and returns an encoded PNG.
// A span with no end_time yet is drawn as a thin marker at its start.
func RenderTimelinePNG(trace *store.Trace, spans []*store.Span) ([]byte, error) {
	height := timelineMarginTop*2 + len(spans)*timelineRowHeight
	if height < timelineMarginTop*2+timelineRowHeight {
		height = timelineMarginTop*2 + timelineRowHeight
	}
	canvas := imaging.New(timelineWidth, height, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})

	spanStart := trace.StartTime
	spanEnd := trace.StartTime + 1
	if trace.EndTime != nil && *trace.EndTime > spanStart {
		spanEnd = *trace.EndTime
	}
	totalWidth := float64(timelineWidth - timelineMarginLeft*2)

	for i, sp := range spans {
		y0 := timelineMarginTop + i*timelineRowHeight + 4
		y1 := y0 + timelineRowHeight - 8

		x0 := timelineMarginLeft + int(((sp.StartTime-spanStart)/(spanEnd-spanStart))*totalWidth)
		end := sp.StartTime + 0.05
		if sp.EndTime != nil {
			end = *sp.EndTime
		}
		x1 := timelineMarginLeft + int(((end-spanStart)/(spanEnd-spanStart))*totalWidth)
		if x1 <= x0 {
			x1 = x0 + 2
		}

		col, ok := statusColor[sp.Status]
		if !ok {
			col = statusColor[store.StatusUnset]
		}
		bar := imaging.New(clampWidth(x1-x0), y1-y0, col)
		canvas = imaging.Paste(canvas, bar, image.Pt(x0, y0))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampWidth(w int) int {
	if w < 1 {
		return 1
	}
	return w
}
