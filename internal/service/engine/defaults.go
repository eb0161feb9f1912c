package engine

import "time"

const (
	defaultWorkerCount = 8

	priceRefreshInterval = 15 * time.Second
	renderTickInterval   = 1 * time.Second
)
