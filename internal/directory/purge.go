package directory

import (
	"context"
	"time"

	"gopkg.in/tomb.v2"

	"keydirectory/internal/apperr"
	"keydirectory/internal/metrics"
	"keydirectory/internal/storage"
)

// purgeAged implements spec section 4.2 step 1: a record that has never had
// a user ID verified, and is older than the configured horizon, is
// considered abandoned and removed.
func (d *Directory) purgeAged(ctx context.Context) (int, error) {
	horizon := d.purgeHorizon().UTC()
	sel := storage.And(
		storage.Lt("uploaded", horizon),
		storage.NoneMatch("userIds", storage.Eq("verified", true)),
	)
	n, err := d.store.Remove(ctx, sel, storage.PublicKeyType)
	if err != nil {
		return 0, apperr.Wrap(apperr.PersistFailed, err, "purging aged unverified records")
	}
	if n > 0 {
		metrics.PurgedRecords.Add(float64(n))
	}
	return n, nil
}

// StartPurgeWorker launches the background ticker the SUPPLEMENTED
// FEATURES section describes: a tomb.v2-supervised goroutine that invokes
// purgeAged on the configured interval, mirroring the teacher's use of
// tomb.v2 to supervise long-lived workers. Call Stop to shut it down.
func (d *Directory) StartPurgeWorker() {
	d.purgeT = new(tomb.Tomb)
	interval := time.Duration(d.cfg.PurgeIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	d.purgeT.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.purgeT.Dying():
				return nil
			case <-ticker.C:
				ctx := context.Background()
				if _, err := d.purgeAged(ctx); err != nil {
					apperr.Report(err)
				}
			}
		}
	})
}

// Stop shuts the background purge worker down, blocking until it exits.
func (d *Directory) Stop() error {
	if d.purgeT == nil {
		return nil
	}
	d.purgeT.Kill(nil)
	return d.purgeT.Wait()
}
