// Package speechctx turns what the user says into per-class confidence
// adjustments for the detection overlay.
//
// Saying "the screen is cracked" raises lcd_retak and lcd_rusak detections
// and, once the context is strong, slightly lowers unrelated classes.
package speechctx

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/detect"
)

// Weight links a keyword to a fault class.
type Weight struct {
	Class  string
	Weight float64
}

// Keywords maps lowercase phrases to the classes they point at.
var Keywords = map[string][]Weight{
	"screen":          {{"lcd_retak", 0.8}, {"lcd_rusak", 0.8}, {"lcd_garis", 0.6}, {"phone_damage", 0.3}},
	"display":         {{"lcd_retak", 0.8}, {"lcd_rusak", 0.8}, {"lcd_garis", 0.6}},
	"lcd":             {{"lcd_retak", 0.9}, {"lcd_rusak", 0.9}, {"lcd_garis", 0.7}},
	"cracked screen":  {{"lcd_retak", 1.0}, {"phone_damage", 0.4}},
	"broken screen":   {{"lcd_rusak", 1.0}, {"lcd_retak", 0.7}, {"phone_damage", 0.4}},
	"dead screen":     {{"lcd_rusak", 1.0}},
	"black screen":    {{"lcd_rusak", 1.0}},
	"lines on screen": {{"lcd_garis", 1.0}},
	"lines":           {{"lcd_garis", 0.9}},
	"streaks":         {{"lcd_garis", 0.9}},
	"flickering":      {{"lcd_garis", 0.7}, {"lcd_rusak", 0.5}},
	"glitching":       {{"lcd_garis", 0.7}, {"lcd_rusak", 0.5}},

	"scratch":      {{"body_lecet", 1.0}},
	"scratched":    {{"body_lecet", 1.0}},
	"scuff":        {{"body_lecet", 0.9}},
	"scraped":      {{"body_lecet", 0.9}},
	"crack":        {{"body_retak", 0.8}, {"lcd_retak", 0.6}},
	"cracked":      {{"body_retak", 0.8}, {"lcd_retak", 0.6}},
	"cracked back": {{"body_retak", 1.0}},
	"back panel":   {{"body_retak", 0.9}, {"body_lecet", 0.5}},
	"back glass":   {{"body_retak", 1.0}},
	"body crack":   {{"body_retak", 1.0}},
	"body damage":  {{"body_retak", 0.8}, {"body_lecet", 0.6}, {"phone_damage", 0.4}},
	"dent":         {{"body_retak", 0.7}, {"phone_damage", 0.5}},
	"bent":         {{"body_retak", 0.7}, {"phone_damage", 0.5}},

	"broken":        {{"phone_damage", 0.8}, {"lcd_rusak", 0.5}, {"body_retak", 0.5}},
	"damaged":       {{"phone_damage", 0.9}},
	"smashed":       {{"lcd_rusak", 0.9}, {"body_retak", 0.7}, {"phone_damage", 0.6}},
	"shattered":     {{"lcd_rusak", 1.0}, {"body_retak", 0.7}},
	"dropped":       {{"phone_damage", 0.7}, {"lcd_retak", 0.5}, {"body_retak", 0.5}},
	"fell":          {{"phone_damage", 0.6}, {"lcd_retak", 0.4}, {"body_retak", 0.4}},
	"water damage":  {{"phone_damage", 0.9}},
	"not working":   {{"phone_damage", 0.8}, {"lcd_rusak", 0.6}},
	"won't turn on": {{"lcd_rusak", 0.8}, {"phone_damage", 0.7}},

	"phone":   {{"phone", 0.3}, {"smartphone", 0.3}},
	"iphone":  {{"phone", 0.3}, {"smartphone", 0.3}},
	"samsung": {{"phone", 0.3}, {"smartphone", 0.3}},
	"android": {{"phone", 0.3}, {"smartphone", 0.3}},
	"device":  {{"phone", 0.2}, {"smartphone", 0.2}},
}

const (
	DefaultBoostFactor = 0.15
	DefaultDecay       = 0.85

	strongContext = 0.5
	suppressBy    = 0.9
	maxConfidence = 0.99
	dropBelow     = 0.01
)

// Context keeps rolling class scores built from transcripts. It is safe for
// concurrent use: the session updates it while the detection loop reads it.
type Context struct {
	BoostFactor float64
	Decay       float64

	mu       sync.Mutex
	scores   map[string]float64
	keywords map[string][]Weight
	order    []string
}

// New returns a Context over the default keyword map.
func New() *Context {
	return NewWithKeywords(Keywords)
}

// NewWithKeywords returns a Context over a custom keyword map.
func NewWithKeywords(keywords map[string][]Weight) *Context {
	order := make([]string, 0, len(keywords))
	lowered := make(map[string][]Weight, len(keywords))
	for k, v := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		lowered[k] = v
		order = append(order, k)
	}
	// Longer phrases first; ties sorted for stable iteration.
	sort.Slice(order, func(i, j int) bool {
		if len(order[i]) != len(order[j]) {
			return len(order[i]) > len(order[j])
		}
		return order[i] < order[j]
	})
	return &Context{
		BoostFactor: DefaultBoostFactor,
		Decay:       DefaultDecay,
		scores:      map[string]float64{},
		keywords:    lowered,
		order:       order,
	}
}

// Update folds a transcript chunk into the rolling scores.
func (c *Context) Update(transcript string) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if c == nil || text == "" {
		return
	}
	matched := map[string]float64{}
	for _, kw := range c.order {
		if !strings.Contains(text, kw) {
			continue
		}
		for _, w := range c.keywords[kw] {
			matched[w.Class] = math.Min(1, matched[w.Class]+w.Weight)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for cls, score := range matched {
		c.scores[cls] = math.Min(1, math.Max(c.scores[cls], score))
	}
}

// Tick decays all scores once. Scores that fall below 0.01 are dropped.
func (c *Context) Tick() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for cls, v := range c.scores {
		v *= c.Decay
		if v < dropBelow {
			delete(c.scores, cls)
			continue
		}
		c.scores[cls] = v
	}
}

// Reset forgets all context.
func (c *Context) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.scores = map[string]float64{}
	c.mu.Unlock()
}

// Score returns the current score for class.
func (c *Context) Score(class string) float64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scores[class]
}

// Adjust returns a re-ranked copy of dets. The input slice is not modified.
func (c *Context) Adjust(dets []detect.Detection) []detect.Detection {
	out := append([]detect.Detection(nil), dets...)
	if c == nil || len(out) == 0 {
		return out
	}

	c.mu.Lock()
	scores := make(map[string]float64, len(c.scores))
	strong := false
	for k, v := range c.scores {
		scores[k] = v
		if v > strongContext {
			strong = true
		}
	}
	boost := c.BoostFactor
	c.mu.Unlock()

	if len(scores) == 0 {
		return out
	}
	for i := range out {
		score := scores[out[i].Label]
		switch {
		case score > 0:
			out[i].Confidence = math.Min(maxConfidence, out[i].Confidence+boost*score)
			out[i].SpeechMatch = true
		case strong:
			out[i].Confidence *= suppressBy
			out[i].SpeechMatch = false
		default:
			out[i].SpeechMatch = false
		}
	}
	detect.SortByConfidence(out)
	return out
}

// Summary renders the top three classes, e.g. "Context: lcd retak (100%)".
func (c *Context) Summary() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	type kv struct {
		class string
		score float64
	}
	all := make([]kv, 0, len(c.scores))
	for k, v := range c.scores {
		all = append(all, kv{k, v})
	}
	c.mu.Unlock()
	if len(all) == 0 {
		return ""
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].class < all[j].class
	})
	if len(all) > 3 {
		all = all[:3]
	}
	parts := make([]string, 0, len(all))
	for _, e := range all {
		parts = append(parts, fmt.Sprintf("%s (%.0f%%)", strings.ReplaceAll(e.class, "_", " "), e.score*100))
	}
	return "Context: " + strings.Join(parts, ", ")
}

// Boost wraps a detector so each cycle's results are re-ranked by c, then
// the context decays by one tick.
func Boost(inner detect.Detector, c *Context) detect.Detector {
	return detect.DetectorFunc(func(ctx context.Context, frame camera.Frame) ([]detect.Detection, error) {
		dets, err := inner.Detect(ctx, frame)
		if err != nil {
			return nil, err
		}
		out := c.Adjust(dets)
		c.Tick()
		return out, nil
	})
}
