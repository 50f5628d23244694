// setgps writes a fixed GPS position into JPEG photos.
package main

import (
	"flag"
	"os"

	"github.com/hashicorp/go-multierror"
	"k8s.io/klog/v2"

	"github.com/tstromberg/geotagger/pkg/geotag"
)

var (
	lat       = flag.Float64("lat", 0, "latitude in decimal degrees")
	lon       = flag.Float64("lon", 0, "longitude in decimal degrees")
	dryRun    = flag.Bool("n", false, "dry-run mode, don't write anything")
	overwrite = flag.Bool("o", false, "overwrite existing positions")
	backupDir = flag.String("backup", "", "directory to copy photos to before writing them")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if len(flag.Args()) == 0 {
		klog.Exitf("No photos provided. Usage: %s -lat <lat> -lon <lon> <dir|photo> ...", os.Args[0])
	}

	c, err := geotag.NewCoordinate(*lat, *lon)
	if err != nil {
		klog.Exitf("position: %v", err)
	}

	md := &geotag.Exif{BackupDir: *backupDir}
	defer func() {
		if err := md.Close(); err != nil {
			klog.Errorf("Failed to close exiftool: %v", err)
		}
	}()

	n, err := tag(md, flag.Args(), c)
	klog.Infof("setgps completed: %d photos tagged with %s", n, c)
	if err != nil {
		klog.Errorf("%v", err)
		md.Close()
		os.Exit(1)
	}
}

// tag writes c into every photo found at paths, reporting all failures together.
func tag(md geotag.Metadata, paths []string, c geotag.Coordinate) (int, error) {
	var merr *multierror.Error
	tagged := 0

	for _, p := range paths {
		ps, err := geotag.Find(p)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}

		for _, path := range ps {
			g, err := md.ReadGPS(path)
			if err != nil {
				klog.V(1).Infof("no GPS data for %s: %v", path, err)
			}
			if g != nil && !*overwrite {
				klog.Infof("%s has a position, skipping (use -o to overwrite)", path)
				continue
			}

			klog.Infof("tagging %s with %s", path, c)
			if *dryRun {
				continue
			}
			if err := md.WriteGPS(path, c.Lat, c.Lon); err != nil {
				merr = multierror.Append(merr, err)
				continue
			}
			tagged++
		}
	}

	return tagged, merr.ErrorOrNil()
}
