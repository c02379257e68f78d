// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command opalctl drives an Opal-compliant self-encrypting drive: discover
// its TCG feature set, lock or unlock locking ranges, manage the shadow MBR,
// and erase the Locking SP.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/davecgh/go-spew/spew"

	"github.com/opalhost/go-opal/pkg/cmdutil"
	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/core/uid"
	"github.com/opalhost/go-opal/pkg/drive"
	"github.com/opalhost/go-opal/pkg/locking"
	"github.com/opalhost/go-opal/pkg/metrics"
)

type deviceArg struct {
	Device string `arg:"" help:"Path to the drive's device node, e.g. /dev/sda."`
}

type discoverCmd struct {
	deviceArg
}

func (c *discoverCmd) Run() error {
	d, err := drive.Open(c.Device)
	if err != nil {
		return fmt.Errorf("drive.Open: %w", err)
	}
	defer d.Close()

	d0, err := core.Discovery0(d)
	if err != nil {
		return fmt.Errorf("core.Discovery0: %w", err)
	}
	spew.Dump(d0)
	return nil
}

type unlockCmd struct {
	deviceArg
	Range int `optional:"" default:"0" help:"Locking range index to unlock."`
	cmdutil.PasswordEmbed
}

func (c *unlockCmd) Run() error {
	d, cs, err := open(c.Device)
	if err != nil {
		return err
	}
	defer d.Close()

	pin, err := c.GenerateHash(d)
	if err != nil {
		return fmt.Errorf("password hashing: %w", err)
	}

	ranges, err := locking.Ranges(cs, uid.AuthorityAdmin1, pin)
	if err != nil {
		return fmt.Errorf("enumerate ranges: %w", err)
	}
	if c.Range < 0 || c.Range >= len(ranges) {
		return fmt.Errorf("range %d out of bounds, drive reports %d ranges", c.Range, len(ranges))
	}

	return locking.SetLocked(cs, uid.AuthorityAdmin1, pin, ranges[c.Range].UID, false, false)
}

type lockCmd struct {
	deviceArg
	Range int `optional:"" default:"0" help:"Locking range index to lock."`
	cmdutil.PasswordEmbed
}

func (c *lockCmd) Run() error {
	d, cs, err := open(c.Device)
	if err != nil {
		return err
	}
	defer d.Close()

	pin, err := c.GenerateHash(d)
	if err != nil {
		return fmt.Errorf("password hashing: %w", err)
	}

	ranges, err := locking.Ranges(cs, uid.AuthorityAdmin1, pin)
	if err != nil {
		return fmt.Errorf("enumerate ranges: %w", err)
	}
	if c.Range < 0 || c.Range >= len(ranges) {
		return fmt.Errorf("range %d out of bounds, drive reports %d ranges", c.Range, len(ranges))
	}

	return locking.SetLocked(cs, uid.AuthorityAdmin1, pin, ranges[c.Range].UID, true, true)
}

type setMBRCmd struct {
	deviceArg
	Done bool `optional:"" help:"Mark the shadow MBR as done, exposing the real LBA range."`
	cmdutil.PasswordEmbed
}

func (c *setMBRCmd) Run() error {
	d, cs, err := open(c.Device)
	if err != nil {
		return err
	}
	defer d.Close()

	pin, err := c.GenerateHash(d)
	if err != nil {
		return fmt.Errorf("password hashing: %w", err)
	}
	return locking.SetMBRDone(cs, uid.AuthorityAdmin1, pin, c.Done)
}

type uploadMBRCmd struct {
	deviceArg
	Image string `arg:"" help:"Path to the boot-loader image to shadow over the real LBA range."`
	cmdutil.PasswordEmbed
}

func (c *uploadMBRCmd) Run() error {
	d, cs, err := open(c.Device)
	if err != nil {
		return err
	}
	defer d.Close()

	image, err := os.ReadFile(c.Image)
	if err != nil {
		return fmt.Errorf("reading MBR image: %w", err)
	}

	pin, err := c.GenerateHash(d)
	if err != nil {
		return fmt.Errorf("password hashing: %w", err)
	}
	return locking.WriteShadowMBR(cs, uid.AuthorityAdmin1, pin, image)
}

type eraseCmd struct {
	deviceArg
	cmdutil.PasswordEmbed
}

func (c *eraseCmd) Run() error {
	d, cs, err := open(c.Device)
	if err != nil {
		return err
	}
	defer d.Close()

	pin, err := c.GenerateHash(d)
	if err != nil {
		return fmt.Errorf("password hashing: %w", err)
	}
	return locking.Erase(cs, pin)
}

var cli struct {
	Discover  discoverCmd  `cmd:"" help:"Run Level-0 discovery and dump the drive's feature descriptors."`
	Unlock    unlockCmd    `cmd:"" help:"Unlock a locking range for read and write."`
	Lock      lockCmd      `cmd:"" help:"Lock a locking range for read and write."`
	SetMBR    setMBRCmd    `cmd:"set-mbr" help:"Toggle the shadow MBR's Done flag."`
	UploadMBR uploadMBRCmd `cmd:"upload-mbr" help:"Write a boot-loader image into the shadow MBR and enable it."`
	Erase     eraseCmd     `cmd:"" help:"Revert the Locking SP, destroying every range's key material."`
}

func open(device string) (drive.DriveIntf, *core.ControlSession, error) {
	d, err := drive.Open(device)
	if err != nil {
		return nil, nil, fmt.Errorf("drive.Open: %w", err)
	}
	d0, err := core.Discovery0(d)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("core.Discovery0: %w", err)
	}
	cs, err := core.NewControlSession(d, d0,
		core.WithLogger(slog.Default()),
		core.WithMethodObserver(metrics.SessionObserver{}))
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("core.NewControlSession: %w", err)
	}
	return d, cs, nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("opalctl"),
		kong.Description("Manage Opal self-encrypting drives."),
		kong.Resolvers(cmdutil.ResolvePassword(false)),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "opalctl:", err)
		os.Exit(1)
	}
}
