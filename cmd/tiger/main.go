// Command tiger is a minimal ebiten demo player, grounded in the teacher
// package's examples/mediaplayer demo: open a file from argv, build a
// reisen-backed demux.File, wire it through a player.Player, and present
// video/audio with the sinks package while an ebiten.Game loop drives input.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/playgraph/tiger/demux"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
	"github.com/playgraph/tiger/player"
	"github.com/playgraph/tiger/sinks"
)

// seekStep is how far Left/Right nudge playback per press.
const seekStep = 5 * time.Second

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: tiger path/to/video.mp4\n")
		os.Exit(1)
	}

	path, err := filepath.Abs(os.Args[1])
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Printf("%q not found.\n", path)
			os.Exit(1)
		}
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	file, err := demux.Open(path)
	if err != nil {
		fmt.Printf("opening %q: %v\n", path, err)
		os.Exit(1)
	}

	if rate, ok := sampleRateOf(file); ok {
		audio.NewContext(rate)
	}

	game := &tigerGame{file: file, title: filepath.Base(path)}
	game.p = player.New(game.onInfo, nil)
	game.p.Open(file, player.Options{
		Decoder: demux.NewPassthroughDecoder,
		Sink:    game.newSink,
		Mode:    media.ModeNormal,
	})
	game.p.Start()

	ebiten.SetWindowTitle("tiger - " + game.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(1280, 720)

	if err := ebiten.RunGame(game); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	os.Exit(game.exitCode)
}

// sampleRateOf inspects file's published formats for an audio track, the
// same lookup CreateAudioContextForMedia performed in the teacher package,
// generalized from "the one audio stream" to "whichever track carries kind
// audio" since demux.File may publish more than one track.
func sampleRateOf(file media.File) (int, bool) {
	formats := file.Formats()
	count, _ := formats.Int(media.KeyCount)
	for i := 0; i < count; i++ {
		track, ok := formats.Track(i)
		if !ok {
			continue
		}
		kind, ok := track.Int(media.KeyType)
		if !ok || media.Kind(kind) != media.KindAudio {
			continue
		}
		rate, ok := track.Int(media.KeySampleRate)
		if ok {
			return rate, true
		}
	}
	return 0, false
}

// tigerGame is the ebiten.Game driving the demo window, the same shape as
// the teacher package's own MediaPlayer struct in examples/mediaplayer.
type tigerGame struct {
	file  *demux.File
	title string
	p     *player.Player

	video    *sinks.VideoSink
	lastErr  error
	exitCode int
	quit     bool
}

// newSink is the player.SinkFactory: build a VideoSink or AudioSink
// depending on the track kind, mirroring the teacher package's per-kind
// controller construction in newPlayer.
func (g *tigerGame) newSink(format media.Config) (media.Device, error) {
	kind, _ := format.Int(media.KeyType)
	switch media.Kind(kind) {
	case media.KindVideo:
		w, _ := format.Int(media.KeyWidth)
		h, _ := format.Int(media.KeyHeight)
		if w == 0 || h == 0 {
			w, h = 1280, 720
		}
		g.video = sinks.NewVideoSink(w, h)
		return g.video, nil
	case media.KindAudio:
		audioFmt := media.AudioFormat{Format: media.SampleS16}
		if rate, ok := format.Int(media.KeySampleRate); ok {
			audioFmt.Freq = rate
		}
		if ch, ok := format.Int(media.KeyChannels); ok {
			audioFmt.Channels = ch
		}
		return sinks.NewAudioSink(audioFmt)
	default:
		return nil, media.ErrNotSupported
	}
}

func (g *tigerGame) onInfo(info player.Info, payload media.Config) {
	switch info {
	case player.InfoError:
		g.exitCode = 1
		if msg, ok := payload.String("error"); ok {
			g.lastErr = fmt.Errorf("%s", msg)
		}
	case player.InfoEnd:
		g.quit = true
	}
}

func (g *tigerGame) Layout(_, _ int) (int, int) {
	panic("Layout() should not be called when LayoutF() exists")
}

func (g *tigerGame) LayoutF(w, h float64) (float64, float64) {
	scale := ebiten.Monitor().DeviceScaleFactor()
	return w * scale, h * scale
}

func (g *tigerGame) Update() error {
	if g.quit || g.lastErr != nil {
		g.p.Close()
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		g.p.Close()
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		if g.p.State() == player.StatePlaying {
			g.p.Pause()
		} else {
			g.p.Start()
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		now := g.p.Clock().Get()
		g.p.Seek(now.Add(mediatime.FromSeconds(seekStep.Seconds())))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		now := g.p.Clock().Get()
		g.p.Seek(now.Sub(mediatime.FromSeconds(seekStep.Seconds())))
	}
	return nil
}

func (g *tigerGame) Draw(canvas *ebiten.Image) {
	if g.video != nil {
		Draw(canvas, g.video.Image())
	}
	g.drawGUI(canvas)
}

// drawGUI renders the playback state as text, the teacher package's own
// minimal-GUI approach (examples/mediaplayer) rather than a styled overlay.
func (g *tigerGame) drawGUI(canvas *ebiten.Image) {
	bounds := canvas.Bounds()
	state := g.p.State().String()
	ebitenutil.DebugPrintAt(canvas, fmt.Sprintf("%s - %s (SPACE pause, Q/ESC quit, </> seek)", g.title, state),
		8, bounds.Dy()-20)
}
