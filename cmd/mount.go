// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/appendfs/appendfs/cfg"
	"github.com/appendfs/appendfs/internal/bridge"
	"github.com/appendfs/appendfs/internal/fs"
	"github.com/appendfs/appendfs/internal/logger"
	"github.com/appendfs/appendfs/internal/monitor"
	"github.com/appendfs/appendfs/internal/perms"
	"github.com/appendfs/appendfs/internal/storage"
	"github.com/appendfs/appendfs/internal/storage/boltstore"
	"github.com/appendfs/appendfs/internal/storage/memstore"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/jacobsa/timeutil"
)

// openStore builds the object store the config asks for. The returned
// closer is nil for stores with nothing to release.
func openStore(config *cfg.Config) (store storage.ObjectStore, closer func() error, err error) {
	if config.Store.InMemory {
		store = memstore.New()
		return
	}

	bs, err := boltstore.Open(config.Store.Path, os.FileMode(config.Store.FileMode))
	if err != nil {
		err = fmt.Errorf("opening store: %w", err)
		return
	}

	store = bs
	closer = bs.Close
	return
}

func runMount(fsName string, mountPoint string, config *cfg.Config) (err error) {
	if err = logger.Init(config.Logging); err != nil {
		return
	}

	instanceID := uuid.New().String()
	logger.Infof("appendfs %s starting, instance %s", version, instanceID)

	store, closer, err := openStore(config)
	if err != nil {
		return
	}

	if closer != nil {
		defer closer()
	}

	uid, gid, err := perms.MyUserAndGroup()
	if err != nil {
		return fmt.Errorf("finding process identity: %w", err)
	}

	core, err := fs.New(context.Background(), &fs.ServerConfig{
		Clock:  timeutil.RealClock(),
		Store:  store,
		FSName: fsName,
		Uid:    uid,
		Gid:    gid,
	})

	if err != nil {
		return fmt.Errorf("creating filesystem: %w", err)
	}

	nfs := pathfs.NewPathNodeFs(bridge.New(core), nil)
	server, _, err := nodefs.MountRoot(mountPoint, nfs.Root(), &nodefs.Options{
		Debug: config.DebugFuse,
	})

	if err != nil {
		return fmt.Errorf("mounting %s: %w", mountPoint, err)
	}

	if config.Metrics.Port != 0 {
		monitor.Serve(config.Metrics.Port)
	}

	// Unmount cleanly on SIGINT/SIGTERM; Serve returns once the kernel
	// connection is gone.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		logger.Infof("unmounting %s", mountPoint)
		if err := server.Unmount(); err != nil {
			logger.Errorf("unmounting: %v", err)
		}
	}()

	logger.Infof("filesystem %q mounted at %s", fsName, mountPoint)
	server.Serve()

	return nil
}
