package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/akd2g/kollmorgen"
	"github.com/nasa-jpl/akd2g/motor"
)

const usage = `akd2gtest enables, homes, and moves one axis of an AKD2G drive.

Usage:
	akd2gtest <addr> <axis> <position> [velocity] [acceleration]

addr is host:port of the drive, or "mock" for the simulator.
axis is 1-based.  position, velocity and acceleration are in microdegrees,
per second, per second squared; velocity and acceleration default to 1e6.`

const (
	pollPeriod  = 100 * time.Millisecond
	moveTimeout = 2 * time.Minute
)

// waitDone polls the axis until it reports done, showing a spinner
func waitDone(ax *kollmorgen.Axis, what string) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + what,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return err
	}
	if err = spinner.Start(); err != nil {
		return err
	}
	deadline := time.Now().Add(moveTimeout)
	for {
		res, err := ax.Poll()
		if err != nil {
			spinner.StopFailMessage(err.Error())
			spinner.StopFail()
			return err
		}
		spinner.Message(fmt.Sprintf("%.0f", res.Position))
		if res.Done {
			spinner.StopMessage(fmt.Sprintf("%.0f", res.Position))
			return spinner.Stop()
		}
		if time.Now().After(deadline) {
			spinner.StopFail()
			return errors.Errorf("%s did not finish within %v", what, moveTimeout)
		}
		time.Sleep(pollPeriod)
	}
}

func parseFloatArg(args []string, i int, def float64) float64 {
	if len(args) <= i {
		return def
	}
	f, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		log.Fatalf("argument %d: %v", i+1, err)
	}
	return f
}

func main() {
	args := os.Args[1:]
	if len(args) < 3 {
		fmt.Println(usage)
		return
	}
	axisNo, err := strconv.Atoi(args[1])
	if err != nil || axisNo < 1 {
		log.Fatalf("axis must be a positive integer, got %q", args[1])
	}
	pos := parseFloatArg(args, 2, 0)
	vel := parseFloatArg(args, 3, 1e6)
	acc := parseFloatArg(args, 4, 1e6)

	opts := kollmorgen.Options{Name: "akd2gtest", Params: motor.NewParams()}
	var drv *kollmorgen.Controller
	if args[0] == "mock" {
		drv, _ = kollmorgen.NewControllerMock(axisNo, opts)
	} else {
		drv = kollmorgen.NewController(args[0], false, axisNo, opts)
	}
	ax := drv.Axis(axisNo - 1)

	name, err := drv.Name()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("connected to %s", name)

	if err = ax.Initialize(); err != nil {
		log.Fatal(err)
	}
	if err = ax.SetClosedLoop(true); err != nil {
		log.Fatal(err)
	}
	if err = ax.Home(0, vel, acc, true); err != nil {
		log.Fatal(err)
	}
	if err = waitDone(ax, "homing"); err != nil {
		log.Fatal(err)
	}
	if err = ax.Move(pos, 0, vel, acc); err != nil {
		log.Fatal(err)
	}
	if err = waitDone(ax, "moving"); err != nil {
		log.Fatal(err)
	}
	drv.Report(os.Stdout, 2)
}
