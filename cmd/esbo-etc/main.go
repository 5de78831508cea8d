package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/output"
	"github.com/LukasK13/ESBO-ETC/pipeline"
	"github.com/LukasK13/ESBO-ETC/server"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1.0.0"

	// ConfigFileName is the file holding the settings of the program itself
	ConfigFileName = "esbo-etc.yml"

	// CalcFileName is the calculation configuration used when none is given
	CalcFileName = "esbo-etc_defaults.yml"

	k = koanf.New(".")
)

// Settings holds the settings of the program, as opposed to the
// configuration of a calculation
type Settings struct {
	// Log configures the log output
	Log logging.Config `koanf:"log" yaml:"log"`

	// Spin shows a spinner while a calculation runs
	Spin bool `koanf:"spin" yaml:"spin"`

	// Server configures esbo-etc serve
	Server server.Config `koanf:"server" yaml:"server"`
}

func setupconfig() {
	k.Load(structs.Provider(Settings{
		Log:    logging.Config{Level: "warn", Format: "text"},
		Spin:   true,
		Server: server.DefaultConfig()}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func settings() Settings {
	s := Settings{}
	if err := k.Unmarshal("", &s); err != nil {
		log.Fatal(err)
	}
	return s
}

func root() {
	str := `esbo-etc is an exposure time calculator for astronomical instruments.  It
propagates the radiation of a target through a chain of optical components
onto a detector and computes the signal to noise ratio, the exposure time or
the limiting magnitude of an observation.

Usage:
	esbo-etc <command>

Commands:
	run
	serve
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `esbo-etc reads the configuration of a calculation from a YAML file, see
https://yaml.org/start.html for a primer.  run takes its path as argument:

	esbo-etc run [-o output] [-q] [config.yml]

The file has four sections: common, astroscene, common_optics and instrument.
What is computed depends on the common section:
- exposure_time only: the SNR reached in each exposure time
- snr only: the exposure time needed for each SNR
- both: the faintest magnitude reaching the SNR in the exposure time; the
  target must be a BlackBodyTarget

Every option of the common section can be overridden from the environment,
with the path separated by double underscores, e.g.
ESBOETC_COMMON__EXPOSURE_TIME__VAL=100 for common.exposure_time.val.

serve exposes the calculator over HTTP.  POST a configuration to /run to
compute it, or to /check to only check it.

The settings of the program (log level, spinner, server) live in
esbo-etc.yml.  mkconf writes the defaults there, conf prints them, or the
merged configuration of a calculation when given its path.

Types, case insensitive:`
	fmt.Println(str)
	for _, kind := range []string{"target", "component", "sensor"} {
		fmt.Printf("- %s: %s\n", kind, strings.Join(pipeline.TypeNames(kind), ", "))
	}
}

func mkconf() {
	c := settings()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf(args []string) {
	var v any = settings()
	if len(args) > 0 {
		c, err := config.Load(args[0])
		if err != nil {
			log.Fatal(err)
		}
		v = c.Raw()
	}
	err := yml.NewEncoder(os.Stdout).Encode(v)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("esbo-etc version %v\n", Version)
}

func run(args []string) {
	s := settings()
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	outDir := fs.String("o", "", "path to the output directory, overrides common.output.path")
	quiet := fs.Bool("q", !s.Spin, "do not show a spinner")
	debug := fs.Bool("d", false, "print debug information")
	fs.Parse(args)
	fn := CalcFileName
	if fs.NArg() > 0 {
		fn = fs.Arg(0)
	}
	if *debug {
		s.Log.Level = "debug"
	}

	l := logging.New(s.Log, os.Stderr)
	var spin *spinner
	if !*quiet {
		var err error
		if spin, err = newSpinner(l); err != nil {
			log.Fatal(err)
		}
		l = spin
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cols, err := calculate(ctx, fn, *outDir, l)
	if spin != nil {
		spin.Done(err)
	}
	if err != nil {
		log.Fatal(err)
	}
	output.Print(os.Stdout, cols)
}

// calculate runs the calculation configured in fn and writes its results to
// a new run folder
func calculate(ctx context.Context, fn, outDir string, l logging.Logger) ([]output.Column, error) {
	l.Info("Parsing configuration...")
	c, err := config.Load(fn)
	if err != nil {
		return nil, err
	}
	if outDir != "" {
		c.Common.Output.Path = outDir
	}
	rec, err := output.NewRun(c.Common.Output.Path, c.Common.Output.Format, time.Now(), l)
	if err != nil {
		return nil, err
	}

	l.Info("Setting up components...")
	p, err := pipeline.FromConfig(ctx, c, pipeline.WithLogger(l), pipeline.WithRecorder(rec))
	if err != nil {
		return nil, err
	}
	l.Info("Calculating " + c.Common.Mode().String() + "...")
	res, err := p.Run()
	if err != nil {
		return nil, err
	}
	cols := output.ResultColumns(res)
	return cols, rec.WriteResult(cols)
}

func serve() {
	s := settings()
	l := logging.New(s.Log, os.Stderr)
	srv := server.New(s.Server, server.WithLogger(l))
	mux := chi.NewRouter()
	mux.Use(middleware.Logger)
	mux.Mount("/", srv.Handler())
	log.Println("now listening for requests at ", s.Server.Addr)
	log.Fatal(http.ListenAndServe(s.Server.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf(args[2:])
		return
	case "run":
		run(args[2:])
		return
	case "serve":
		serve()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
