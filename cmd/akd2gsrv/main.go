package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "akd2gsrv.yml"
	k              = koanf.New(".")
)

func defaultConfig() Config {
	return Config{
		Addr: ":8000",
		Controllers: []ControllerConfig{{
			Name:             "akd2g",
			Endpoint:         "/akd2g",
			Addr:             "192.168.1.10:23",
			NumAxes:          2,
			MovingPollPeriod: 100,
			IdlePollPeriod:   1000,
			ForcedFastPolls:  2,
		}},
	}
}

func setupconfig() {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `akd2gsrv communicates with Kollmorgen AKD2G servo drives and exposes an
HTTP interface to their axes.

Usage:
	akd2gsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `akd2gsrv is amenable to configuration via its .yml file.  For a primer on YAML, see
https://yaml.org/start.html

mkconf writes the current configuration, defaults included, to akd2gsrv.yml.

Each entry of Controllers is one drive.  Endpoints may look like any variation
between "omc/akd2g" or "/omc/akd2g/", the leading and trailing slashes are
handled by the server.  No two controllers can have the same Endpoint.

Axes are labeled by the drive's own numbering, "1".."NumAxes".  Positions are
in drive units; the drive converts them to its native units internally.
An axis with Limits refuses absolute and relative moves outside of them.

Setting Mock: true replaces every drive with an in-process simulator, which
is useful to exercise clients without hardware.

Poll periods are in milliseconds.  CommandRate limits the number of
exchanges per second with a drive, 0 is unlimited.

Routes of each controller are listed at /endpoints, prometheus metrics are
served at /metrics.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
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

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("akd2gsrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux, ctls := BuildMux(c)
	defer func() {
		for _, ctl := range ctls {
			ctl.Close()
		}
	}()
	log.Println("now listening for requests at ", c.Addr)
	log.Println(http.ListenAndServe(c.Addr, mux))
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
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
