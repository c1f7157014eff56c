package webfile

// Metrics receives service-level events. A nil Metrics in Options disables
// collection.
type Metrics interface {
	UploadCompleted(deduplicated bool, size int64)
	BlobDeleted()
	ReconciliationRecorded()
}

type nopMetrics struct{}

func (nopMetrics) UploadCompleted(bool, int64) {}
func (nopMetrics) BlobDeleted()                {}
func (nopMetrics) ReconciliationRecorded()     {}
