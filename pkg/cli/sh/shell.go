// Package sh provides the operator shell of the door controller.
package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/garagedoor/pkg/cloud"
	"github.com/robotalks/garagedoor/pkg/cloud/mqtt"
	"github.com/robotalks/garagedoor/pkg/config"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Property    string

	Shell  *ishell.Shell
	Config *config.Config
	Remote *Remote
}

const (
	shellKey = "$shell"
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// ErrNotConnected is returned by commands before connecting.
	ErrNotConnected = errors.New("not connected")
	// ErrNoDeviceID is returned when the device is not specified.
	ErrNoDeviceID = errors.New("device id is required")

	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&SetCmd,
		&StatusCmd,
		&WatchCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Property:    cloud.DefaultProperty,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("[none] > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(s *Shell, c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Remote == nil {
			c.Err(ErrNotConnected)
			return
		}
		fn(s, c)
	}
}

// Connect connects the broker and starts tracking the device.
func (s *Shell) Connect() error {
	sec, err := s.Config.MergedSecrets()
	if err != nil {
		return err
	}
	if sec.DeviceID == "" {
		return ErrNoDeviceID
	}
	q, err := mqtt.NewQueueFromURL(s.Config.BrokerURL)
	if err != nil {
		return err
	}
	remote := NewRemote(q, sec.DeviceID)
	q.OnConnect = func(q *mqtt.Queue) { q.Resubscribe() }
	token := q.Connect()
	if err := remote.wait(token.WaitTimeout, token.Error); err != nil {
		return err
	}
	if err := remote.Start(); err != nil {
		q.Close()
		return err
	}
	s.Remote = remote
	s.Shell.SetPrompt(sec.DeviceID + " > ")
	return nil
}

// Disconnect disconnects the broker.
func (s *Shell) Disconnect() {
	if s.Remote != nil {
		s.Remote.Close()
		s.Remote.Queue.Close()
		s.Remote = nil
	}
}

// Print prints property values.
func (s *Shell) Print(c *ishell.Context, values map[string]bool) {
	if s.OutputJSON {
		out, err := json.Marshal(values)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.Printf("%s=%v\n", name, values[name])
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if err := s.Connect(); err != nil {
		log.Fatalf("connect %s failed: %v", s.Config.BrokerURL, err)
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func writeCmd(value bool) func(s *Shell, c *ishell.Context) {
	return func(s *Shell, c *ishell.Context) {
		if err := s.Remote.Write(s.Property, value); err != nil {
			c.Err(err)
			return
		}
		c.Println("OK")
	}
}

var (
	// OpenCmd writes true to the door property.
	OpenCmd = ishell.Cmd{
		Name: "open",
		Help: "press the button to open the door",
		Func: MustBeConnected(writeCmd(true)),
	}

	// CloseCmd writes false to the door property.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "press the button to close the door",
		Func: MustBeConnected(writeCmd(false)),
	}

	// SetCmd writes a value to the door property.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "true|false",
		Func: MustBeConnected(func(s *Shell, c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("expect one value"))
				return
			}
			value, err := strconv.ParseBool(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			writeCmd(value)(s, c)
		}),
	}

	// StatusCmd prints the last reported values.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Func: MustBeConnected(func(s *Shell, c *ishell.Context) {
			values := s.Remote.Values()
			if len(values) == 0 && !s.OutputJSON {
				c.Println("No reports yet")
				return
			}
			s.Print(c, values)
		}),
	}

	// WatchCmd prints reports as they arrive.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Func: MustBeConnected(func(s *Shell, c *ishell.Context) {
			s.Remote.Watch(func(name string, value bool) {
				log.Printf("%s: %s=%v", cloud.OutboundTopic(s.Remote.DeviceID), name, value)
			})
			if s.Interactive && s.Shell.Active() {
				return
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			<-ctx.Done()
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(config.NewConfig()).Run(flag.Args()...)
}
