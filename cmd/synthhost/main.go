// Command synthhost plays a MIDI keyboard through the synthesizer host,
// or renders a demo script to a WAV file with -wav.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/synthhost-go"
)

const (
	ccModWheel = 1
	ccVolume   = 7
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		voices     = flag.Int("voices", 16, "voice pool size")
		queueCap   = flag.Int("queue", 256, "event queue capacity")
		backend    = flag.String("backend", "ebiten", "audio backend: ebiten|oto")
		engineName = flag.String("engine", "fm", "synth engine: fm|chip")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		listPorts  = flag.Bool("list-ports", false, "list MIDI input ports and exit")
		portName   = flag.String("port", "", "MIDI input port (substring match; default: first port)")
		wavPath    = flag.String("wav", "", "render a demo phrase to this WAV file instead of playing live")
	)
	flag.Parse()
	defer gomidi.CloseDriver()

	if *listPorts {
		for i, in := range gomidi.GetInPorts() {
			fmt.Printf("%d: %s\n", i, in.String())
		}
		return
	}

	opts := []synthhost.HostOption{
		synthhost.WithVoices(*voices),
		synthhost.WithQueueCapacity(*queueCap),
	}
	switch strings.ToLower(*engineName) {
	case "fm":
	case "chip":
		opts = append(opts, synthhost.WithChipEngine())
	default:
		log.Fatalf("invalid -engine %q (expected fm|chip)", *engineName)
	}

	if *wavPath != "" {
		if err := renderDemo(*wavPath, *sampleRate, opts); err != nil {
			log.Fatal(err)
		}
		return
	}

	host, err := synthhost.NewHost(*sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	host.SetMasterVolume(*volume)

	events := host.Watch()
	go func() {
		for ev := range events {
			switch ev.Kind {
			case synthhost.EventMessageDropped:
				log.Printf("control message dropped (queue full)")
			case synthhost.EventEngineFault:
				log.Printf("engine fault: block replaced with silence")
			}
		}
	}()

	switch strings.ToLower(*backend) {
	case "ebiten":
		err = host.Start()
	case "oto":
		err = host.StartOto()
	default:
		log.Fatalf("invalid -backend %q (expected ebiten|oto)", *backend)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer host.Stop()

	port, err := findInPort(*portName)
	if err != nil {
		log.Fatal(err)
	}
	in, err := host.ListenMIDI(port, map[uint8]synthhost.CCBinding{
		ccModWheel: {Param: synthhost.ParamCutoff, Min: 200, Max: 12000, Ramp: 10 * time.Millisecond},
		ccVolume:   {Param: synthhost.ParamMasterGain, Min: 0, Max: 0.9, Ramp: 15 * time.Millisecond},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer in.Stop()
	log.Printf("listening on %q, ctrl-c to quit", port.String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	host.AllNotesOff()
	if n := in.Dropped(); n > 0 {
		log.Printf("%d MIDI messages dropped", n)
	}
}

func findInPort(name string) (drivers.In, error) {
	ins := gomidi.GetInPorts()
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI input ports (try -list-ports, or -wav for offline rendering)")
	}
	if strings.TrimSpace(name) == "" {
		return ins[0], nil
	}
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), strings.ToLower(name)) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input port matching %q", name)
}

// renderDemo writes a short arpeggio so the offline path is exercisable
// without a keyboard.
func renderDemo(path string, sampleRate int, opts []synthhost.HostOption) error {
	script := synthhost.NewScript()
	notes := []int{60, 64, 67, 72, 67, 64}
	step := 250 * time.Millisecond
	for i, n := range notes {
		at := time.Duration(i) * step
		key := synthhost.MakeVoiceKey(0, uint8(n))
		script.NoteOn(at, key, n, 100)
		script.NoteOff(at+step*4/5, key)
	}
	script.SetParam(0, synthhost.ParamCutoff, 9000, 0)
	script.SetParam(750*time.Millisecond, synthhost.ParamCutoff, 1200, 500*time.Millisecond)

	total := time.Duration(len(notes))*step + 500*time.Millisecond
	opts = append(opts, synthhost.WithDelay(220, 0.35, 0.2, 0.25))
	samples, err := synthhost.RenderScript(sampleRate, total, script, opts...)
	if err != nil {
		return err
	}
	wav := synthhost.EncodeWAVFloat32LE(samples, sampleRate, 2)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s (%.1fs at %d Hz)", path, total.Seconds(), sampleRate)
	return nil
}
