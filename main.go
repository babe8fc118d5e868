/*
Command mstore inspects and checks mailboxes of various formats through one
uniform store abstraction.

	mstore [-config mstore.conf] [-loglevel level] command [flags] [args]

Run without arguments for a list of commands.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mjl-/mstore/boltstore"
	"github.com/mjl-/mstore/config"
	"github.com/mjl-/mstore/memstore"
	"github.com/mjl-/mstore/mlog"
	"github.com/mjl-/mstore/store"
)

var xlog = mlog.New("main")

var commands = []struct {
	cmd string
	fn  func(c *cmd)
}{
	{"config describe", cmdConfigDescribe},
	{"config test", cmdConfigTest},
	{"check", cmdCheck},
	{"counts", cmdCounts},
	{"verify", cmdVerify},
	{"detect", cmdDetect},
	{"version", cmdVersion},
}

type cmd struct {
	words []string
	fn    func(c *cmd)

	flag     *flag.FlagSet
	flagArgs []string

	params string // Arguments to command.
	help   string // Additional explanation.
	args   []string
}

func (c *cmd) Parse() []string {
	c.flag.Usage = c.Usage
	c.flag.Parse(c.flagArgs)
	c.args = c.flag.Args()
	return c.args
}

func (c *cmd) Usage() {
	fmt.Fprintf(os.Stderr, "usage: mstore %s %s\n", strings.Join(c.words, " "), c.params)
	if c.help != "" {
		fmt.Fprintln(os.Stderr, "\n"+c.help)
	}
	c.flag.PrintDefaults()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mstore [-config mstore.conf] [-loglevel level] command ...")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "\tmstore %s\n", c.cmd)
	}
	os.Exit(2)
}

var configPath string

func main() {
	var loglevel string
	flag.StringVar(&configPath, "config", "mstore.conf", "path to configuration file")
	flag.StringVar(&loglevel, "loglevel", "", "log level: error, info, debug; overrides the configured level")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	if loglevel != "" {
		level, ok := mlog.Levels[loglevel]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown log level %q\n", loglevel)
			os.Exit(2)
		}
		mlog.SetConfig(map[string]mlog.Level{"": level})
	}

	for _, c := range commands {
		words := strings.Split(c.cmd, " ")
		if len(args) < len(words) || !equal(args[:len(words)], words) {
			continue
		}
		cc := &cmd{
			words:    words,
			fn:       c.fn,
			flag:     flag.NewFlagSet("mstore "+c.cmd, flag.ExitOnError),
			flagArgs: args[len(words):],
		}
		cc.fn(cc)
		return
	}
	usage()
}

func equal(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func xcheckf(err error, format string, args ...any) {
	if err != nil {
		xlog.Fatalx(fmt.Sprintf(format, args...), err)
	}
}

func mustLoadConfig() config.Static {
	c, err := config.Load(configPath)
	xcheckf(err, "loading config")

	levels := map[string]mlog.Level{}
	if level, ok := mlog.Levels[c.LogLevel]; ok {
		levels[""] = level
	}
	for pkg, s := range c.PackageLogLevels {
		if level, ok := mlog.Levels[s]; ok {
			levels[pkg] = level
		}
	}
	if len(levels) > 0 {
		mlog.SetConfig(levels)
	}
	return c
}

// driverFor returns a driver for a mailbox type. Only the formats this
// command ships drivers for, other formats are external.
func driverFor(t store.MailboxType) (store.Driver, error) {
	switch t {
	case store.TypeBolt:
		return boltstore.New(), nil
	case store.TypeMem:
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("no driver for mailbox type %s", t)
}

func openConfigured(ctx context.Context, cmb config.Mailbox) (*store.Mailbox, error) {
	t := cmb.ParsedType
	if t == store.TypeAny {
		var err error
		t, err = store.DetectType(cmb.Path)
		if err != nil {
			return nil, err
		}
	}
	mb := store.NewMailbox(cmb.Path, cmb.Description, t)
	mb.ReadOnly = cmb.ReadOnly
	mb.Rights = cmb.ParsedRights
	drv, err := driverFor(t)
	if err != nil {
		return nil, err
	}
	if err := mb.Attach(drv); err != nil {
		return nil, err
	}
	if err := mb.Open(ctx); err != nil {
		return nil, err
	}
	return mb, nil
}

func cmdConfigDescribe(c *cmd) {
	c.help = "Print an annotated example configuration file."
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	err := config.Describe(os.Stdout)
	xcheckf(err, "describing config")
}

func cmdConfigTest(c *cmd) {
	c.help = "Parse and validate the configuration file."
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	conf := mustLoadConfig()
	fmt.Printf("config OK, %d mailboxes\n", len(conf.Mailboxes))
}

func cmdCheck(c *cmd) {
	c.help = `Check all configured mailboxes for changes.

For each mailbox, the driver is asked whether the underlying storage changed,
without opening the mailbox.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	conf := mustLoadConfig()
	ctx := context.Background()

	exitcode := 0
	for _, cmb := range conf.Mailboxes {
		t := cmb.ParsedType
		if t == store.TypeAny {
			var err error
			t, err = store.DetectType(cmb.Path)
			if err != nil {
				xlog.Errorx("detecting mailbox type", err, mlog.Field("path", cmb.Path))
				exitcode = 1
				continue
			}
		}
		mb := store.NewMailbox(cmb.Path, cmb.Description, t)
		drv, err := driverFor(t)
		if err != nil {
			fmt.Printf("%s: type %s, no driver\n", cmb.Path, t)
			continue
		}
		if err := mb.Attach(drv); err != nil {
			xlog.Errorx("attaching driver", err, mlog.Field("path", cmb.Path))
			exitcode = 1
			continue
		}
		kind, err := mb.Check(ctx)
		if err != nil {
			xlog.Errorx("checking mailbox", err, mlog.Field("path", cmb.Path))
			exitcode = 1
			continue
		}
		fmt.Printf("%s: type %s, change %s\n", cmb.Path, t, kind)
	}
	os.Exit(exitcode)
}

func cmdCounts(c *cmd) {
	c.params = "path"
	c.help = "Open the given configured mailbox and print its message counts."
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}
	conf := mustLoadConfig()
	ctx := context.Background()

	for _, cmb := range conf.Mailboxes {
		if cmb.Path != args[0] {
			continue
		}
		mb, err := openConfigured(ctx, cmb)
		xcheckf(err, "opening mailbox")
		defer func() {
			err := mb.Close(ctx)
			xlog.Check(err, "closing mailbox", mlog.Field("path", mb.Path))
		}()
		fmt.Printf("%s: %d messages, %d unread, %d new, %d flagged, %d deleted, %d tagged, %d bytes\n",
			mb.Path, mb.MsgCount, mb.MsgUnread, mb.MsgNew, mb.MsgFlagged, mb.MsgDeleted, mb.MsgTagged, mb.Size)
		return
	}
	xcheckf(errors.New("no such configured mailbox"), "looking up %s", args[0])
}

func cmdVerify(c *cmd) {
	c.params = "path.db"
	c.help = "Verify the consistency of a database-file mailbox."
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}
	n, err := boltstore.Verify(context.Background(), args[0])
	xcheckf(err, "verifying %s", args[0])
	fmt.Printf("%s: OK, %d messages\n", args[0], n)
}

func cmdDetect(c *cmd) {
	c.params = "path ..."
	c.help = "Detect and print the mailbox format of the given paths."
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}
	for _, path := range args {
		t, err := store.DetectType(path)
		if err != nil {
			xlog.Errorx("detecting mailbox type", err, mlog.Field("path", path))
			continue
		}
		fmt.Printf("%s: %s\n", path, t)
	}
}

func cmdVersion(c *cmd) {
	c.help = "Print the version of this build."
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	fmt.Println(version)
}
