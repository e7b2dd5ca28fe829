/*
 * rv64sim - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	rvcommand "github.com/rcornwell/rv64sim/command"
	"github.com/rcornwell/rv64sim/command/reader"
	config "github.com/rcornwell/rv64sim/config/configparser"
	"github.com/rcornwell/rv64sim/emu/checkpoint"
	"github.com/rcornwell/rv64sim/emu/core"
	"github.com/rcornwell/rv64sim/emu/cpu"
	"github.com/rcornwell/rv64sim/emu/device"
	"github.com/rcornwell/rv64sim/emu/memory"
	"github.com/rcornwell/rv64sim/telnet"
	logger "github.com/rcornwell/rv64sim/util/logger"

	_ "github.com/rcornwell/rv64sim/config/debugconfig"
)

// Default physical memory map, matching the retrieved Dromajo/QEMU
// "virt"-style layout this machine models: a small low-RAM window for
// a boot ROM / recovery ROM, main RAM at the 2 GiB line, and the
// CLINT/HTIF/PLIC MMIO windows below it.
const (
	lowRAMBase  = 0x0000_0000
	lowRAMSize  = 0x0001_0000
	mainRAMBase = 0x8000_0000
	clintBase   = 0x0200_0000
	htifBase    = 0x4000_8000
	plicBase    = 0x4010_0000

	defaultMemSize = 128 * 1024 * 1024
	plicHtifLine   = 1
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file (DEBUG options only)")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optImage := getopt.StringLong("image", 'i', "", "Raw boot image loaded at address 0")
	optCheckpoint := getopt.StringLong("checkpoint", 'r', "", "Restore a checkpoint with this file prefix")
	optDump := getopt.StringLong("dump", 'd', "", "Write a checkpoint with this file prefix on exit")
	optConsole := getopt.StringLong("console", 'C', "", "Telnet address for the HTIF console (e.g. :6170); local terminal if omitted")
	optMemSize := getopt.StringLong("memsize", 'm', strconv.Itoa(defaultMemSize), "Main RAM size in bytes")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	debugOn := false
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debugOn))
	slog.SetDefault(Logger)

	Logger.Info("rv64sim started")

	memSize, err := strconv.ParseUint(*optMemSize, 0, 64)
	if err != nil {
		Logger.Error("invalid memsize: " + err.Error())
		os.Exit(1)
	}

	memory.Reset()
	device.Reset()
	memory.SetFlushCallback(cpu.FlushWriteRange)

	if err := memory.RegisterRAM(lowRAMBase, lowRAMSize, 0); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	if err := memory.RegisterRAM(mainRAMBase, memSize, 0); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	clint := device.NewClint("CLINT", clintBase)
	if err := registerDevice(clint); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	plic := device.NewPlic("PLIC", plicBase)
	if err := registerDevice(plic); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	var telnetServer *telnet.Server
	var consoleOut func(byte)
	if *optConsole != "" {
		srv, err := telnet.Start(*optConsole)
		if err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
		telnetServer = srv
		consoleOut = srv.WriteByte
	} else {
		consoleOut = func(b byte) { os.Stdout.Write([]byte{b}) }
	}

	htif := device.NewHtif("HTIF", htifBase, consoleOut)
	htif.SetInterruptTarget(plic, plicHtifLine)
	if telnetServer != nil {
		telnetServer.SetInput(htif.PushInput)
	}
	if err := registerDevice(htif); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	if *optConfig != "" {
		if err := config.LoadConfigFile(*optConfig); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}

	if *optImage != "" {
		if err := loadImage(*optImage, lowRAMBase); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}

	c := core.NewCore(clint, plic, htif)

	if *optCheckpoint != "" {
		if err := checkpoint.Restore(*optCheckpoint); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	} else {
		c.Reset(lowRAMBase)
	}

	c.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		if telnetServer != nil {
			// The HTIF console lives on the telnet connection; the
			// monitor stays on the local liner session.
			reader.ConsoleReader(c)
			return
		}
		if err := rvcommand.RunConsole(c, htif); err != nil {
			Logger.Error(err.Error())
		}
	}()

	select {
	case <-sigChan:
		fmt.Println("Got quit signal")
	case <-consoleDone:
	}

	Logger.Info("shutting down hart")
	c.Shutdown()

	if telnetServer != nil {
		telnetServer.Stop()
	}

	if *optDump != "" {
		if err := checkpoint.Dump(*optDump, lowRAMBase); err != nil {
			Logger.Error(err.Error())
		}
	}

	Logger.Info("stopped")
}

// registerDevice installs dev into both the physical memory map and
// the name-keyed device registry the monitor's "show devices" walks.
func registerDevice(dev device.Device) error {
	if err := memory.RegisterDevice(dev.Base(), dev.Size(), dev); err != nil {
		return err
	}
	return device.RegisterDevice(dev)
}

// loadImage copies a raw binary into the RAM region containing base.
// This is a flat byte copy, not an ELF/device-tree loader: parsing a
// guest image format is out of scope (spec's image-loading Non-goal).
func loadImage(path string, base uint64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	bases := memory.RAMBases()
	regions := memory.RAMRegions()
	for i, b := range bases {
		if b == base {
			n := copy(regions[i], data)
			if n < len(data) {
				return fmt.Errorf("image %s (%d bytes) larger than RAM region at %#x (%d bytes)", path, len(data), base, len(regions[i]))
			}
			return nil
		}
	}
	return fmt.Errorf("no RAM region registered at %#x", base)
}
