package audio

import (
	"github.com/ebitengine/oto/v3"
)

// OtoPlayer drives a SampleSource through oto directly, skipping the
// ebiten context. Useful for headless hosts that don't otherwise link the
// game loop.
type OtoPlayer struct {
	ctx    *oto.Context
	player *oto.Player
	reader *StreamReader
}

func NewOtoPlayer(sampleRate int, source SampleSource) (*OtoPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	reader := NewStreamReader(source)
	return &OtoPlayer{
		ctx:    ctx,
		player: ctx.NewPlayer(reader),
		reader: reader,
	}, nil
}

func (p *OtoPlayer) Play()  { p.player.Play() }
func (p *OtoPlayer) Pause() { p.player.Pause() }

func (p *OtoPlayer) Stop() error {
	p.player.Pause()
	return closeAll(p.player, p.reader)
}
