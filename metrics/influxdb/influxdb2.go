package influxdb

import (
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/location"
)

// Point renders one fused estimate for a device.
func Point(device string, est location.Estimate) *write.Point {
	return influxdb2.NewPointWithMeasurement("estimate").
		SetTime(est.Time).
		AddTag("device", device).
		AddTag("environment", est.Environment.String()).
		AddTag("source", string(est.Source)).
		AddField("latitude", est.Lat).
		AddField("longitude", est.Lng).
		AddField("accuracy", est.Accuracy).
		AddField("bearing", est.Bearing).
		AddField("speed", est.Speed).
		AddField("confidence", est.Confidence).
		AddField("floor", est.Floor)
}

// ExportEstimates posts estimates to an InfluxDB Write API.
// Because it accepts a slice, use batches. The Write API will buffer and flush.
// The last error encountered is returned.
func ExportEstimates(device string, estimates []location.Estimate) error {
	if params.INFLUXDB_URL == "" {
		return nil
	}
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(params.INFLUXDB_URL, params.INFLUXDB_TOKEN, opts)
	writeAPI := client.WriteAPI(params.INFLUXDB_ORG, params.INFLUXDB_BUCKET)

	// Must be called before writing; the chan is unbuffered and must be drained.
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	for _, est := range estimates {
		writeAPI.WritePoint(Point(device, est))
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}
