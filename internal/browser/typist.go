// internal/browser/typist.go
package browser

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Flight-time statistics in milliseconds. The base values model a practiced
// typist; common n-grams roll out faster than isolated keys.
const (
	flightMean    = 70.0
	flightStdDev  = 28.0
	flightMin     = 35.0
	digramFactor  = 0.7
	trigramFactor = 0.55
	// A typo is noticed after a longer pause than an ordinary keystroke.
	recognitionScale = 1.8
)

// keyboardNeighbors maps each QWERTY key to the keys adjacent to it, used to
// pick plausible mistyped characters.
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// commonNgrams holds the letter pairs and triples typed as a single motion.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// typist emits keystrokes with human cadence: normally distributed inter-key
// delays, faster runs through common n-grams, and the occasional neighbor-key
// slip followed by a backspace correction. A typist belongs to one session
// and shares its single-goroutine discipline.
type typist struct {
	rng      *rand.Rand
	typoRate float64
}

func newTypist(typoRate float64) *typist {
	return &typist{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		typoRate: typoRate,
	}
}

// Type sends text to the focused element one key at a time. The caller must
// have focused the target already; keys go to document.activeElement so
// focus-following widgets behave as they would under real input.
func (t *typist) Type(text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		runes := []rune(text)
		for i, c := range runes {
			if err := sleepCtx(ctx, t.flightDelay(runes, i)); err != nil {
				return err
			}
			if t.typoRate > 0 && t.rng.Float64() < t.typoRate {
				if err := t.mistype(ctx, c); err != nil {
					return err
				}
				continue
			}
			if err := sendRune(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// budget returns a worst-case duration for typing text, used to widen the
// action timeout: every key could cost a recognition pause plus correction.
func (t *typist) budget(text string) time.Duration {
	perKeyMs := (flightMean + 3*flightStdDev) * recognitionScale * 2
	perKey := time.Duration(perKeyMs) * time.Millisecond
	return time.Duration(len([]rune(text))) * perKey
}

// flightDelay returns the pause before the keystroke at index.
func (t *typist) flightDelay(runes []rune, index int) time.Duration {
	factor := ngramFactor(runes, index)
	delay := t.rng.NormFloat64()*flightStdDev + flightMean*factor
	return time.Duration(math.Max(flightMin*factor, delay)) * time.Millisecond
}

// recognitionDelay returns the longer pause after a slip is noticed.
func (t *typist) recognitionDelay() time.Duration {
	delay := t.rng.NormFloat64()*flightStdDev + flightMean*recognitionScale
	return time.Duration(math.Max(flightMin*recognitionScale, delay)) * time.Millisecond
}

// ngramFactor speeds up a keystroke that completes a common digram or
// trigram ending at index.
func ngramFactor(runes []rune, index int) float64 {
	if index >= 2 && index < len(runes) && commonNgrams[strings.ToLower(string(runes[index-2:index+1]))] {
		return trigramFactor
	}
	if index >= 1 && index < len(runes) && commonNgrams[strings.ToLower(string(runes[index-1:index+1]))] {
		return digramFactor
	}
	return 1.0
}

// neighborOf returns a plausible mistyped character for c, usually keeping
// its case. The zero rune means c has no mapped neighbors.
func (t *typist) neighborOf(c rune) rune {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(c)]
	if !ok || len(neighbors) == 0 {
		return 0
	}
	typo := rune(neighbors[t.rng.Intn(len(neighbors))])
	if unicode.IsUpper(c) && t.rng.Float64() < 0.8 {
		typo = unicode.ToUpper(typo)
	}
	return typo
}

// mistype hits a key adjacent to the intended one, pauses as if noticing,
// backspaces, and retypes the intended key.
func (t *typist) mistype(ctx context.Context, intended rune) error {
	typo := t.neighborOf(intended)
	if typo == 0 {
		return sendRune(ctx, intended)
	}
	if err := sendRune(ctx, typo); err != nil {
		return err
	}
	if err := sleepCtx(ctx, t.recognitionDelay()); err != nil {
		return err
	}
	if err := sendKeys(ctx, kb.Backspace); err != nil {
		return err
	}
	if err := sleepCtx(ctx, t.flightDelay(nil, 0)); err != nil {
		return err
	}
	return sendRune(ctx, intended)
}

func sendRune(ctx context.Context, c rune) error {
	return sendKeys(ctx, string(c))
}

func sendKeys(ctx context.Context, keys string) error {
	return chromedp.SendKeys("document.activeElement", keys, chromedp.ByJSPath).Do(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
