// geotagger assigns map positions to photos and writes them into their EXIF GPS tags.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"

	_ "image/jpeg"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tstromberg/geotagger/pkg/geotag"
	"github.com/tstromberg/geotagger/pkg/manage"
	"github.com/tstromberg/geotagger/pkg/session"
)

var (
	configPath = flag.String("config", "", "path to YAML config (default ~/.geotagger.yaml)")
	listen     = flag.Bool("listen", false, "serve the HTTP API")
	addr       = flag.String("addr", "localhost:12800", "host:port to bind to in listen mode")
	watchFlag  = flag.Bool("watch", false, "reload photos that change in the loaded directory")
	thumbDir   = flag.String("thumbs", "", "directory to cache thumbnails in (overrides config)")
	backupDir  = flag.String("backup", "", "directory to copy photos to before writing them (overrides config)")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	cfg, err := geotag.ReadConfig(*configPath)
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	if *thumbDir != "" {
		cfg.ThumbDir = *thumbDir
	}
	if *backupDir != "" {
		cfg.BackupDir = *backupDir
	}

	md := &geotag.Exif{BackupDir: cfg.BackupDir}
	defer func() {
		if err := md.Close(); err != nil {
			klog.Errorf("Failed to close exiftool: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	con := newConsole(ctx, os.Stdin, os.Stdout)
	rec := session.NewRecorder()
	s := session.New(cfg, md, session.Views{con, rec}, con)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })

	if *listen {
		srv := &http.Server{Addr: *addr, Handler: manage.New(s, rec).Router()}
		g.Go(func() error {
			klog.Infof("Listening on %s...", *addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	if path := flag.Arg(0); path != "" {
		if err := s.Load(path, nil); err != nil {
			klog.Errorf("load %s: %v", path, err)
		}
		if st, err := os.Stat(path); *watchFlag && err == nil && st.IsDir() {
			g.Go(func() error { return s.Watch(gctx, path) })
		}
	}

	g.Go(func() error {
		defer cancel()
		if con.repl(s) || gctx.Err() != nil {
			return nil
		}
		if *listen {
			klog.Infof("input closed, serving until interrupted")
			<-gctx.Done()
			return nil
		}
		if p := s.Pending(); len(p) > 0 {
			klog.Warningf("input closed, discarding %d unsaved positions: %v", len(p), p)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		klog.Exitf("geotagger failed: %v", err)
	}
}
