/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package collector polls the queue on a fixed interval and retrieves
// accounting for finished jobs in the background. Accounting can block
// for minutes per job, so it runs on a bounded worker pool instead of
// the polling goroutine; one slow or forgotten job never stalls status
// collection for the others.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"SlurmAdapter/internal/drm"
)

const DefaultWorkers = 4

// Result delivers one finished task. Record is nil iff Err is set.
type Result struct {
	Task   *drm.Task
	Record *drm.AccountingRecord
	Err    error
}

type Collector struct {
	drm      *drm.Slurm
	interval time.Duration
	workers  int
	log      *logrus.Entry
}

func New(adapter *drm.Slurm, interval time.Duration, workers int, logger *logrus.Entry) *Collector {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Collector{
		drm:      adapter,
		interval: interval,
		workers:  workers,
		log:      logger,
	}
}

// Run watches tasks until every one of them has completed, delivering a
// Result per task on the returned channel. Each task is delivered
// exactly once; delivery order is unrelated to submission order. The
// channel closes when all tasks are accounted for or ctx is cancelled.
func (c *Collector) Run(ctx context.Context, tasks []*drm.Task) <-chan Result {
	results := make(chan Result, len(tasks))

	inFlight := make(map[string]*drm.Task, len(tasks))
	for _, task := range tasks {
		inFlight[task.JobID] = task
	}

	go func() {
		var wg sync.WaitGroup
		sem := make(chan struct{}, c.workers)

		defer func() {
			wg.Wait()
			close(results)
		}()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for len(inFlight) > 0 {
			remaining := make([]*drm.Task, 0, len(inFlight))
			for _, task := range inFlight {
				remaining = append(remaining, task)
			}

			table := c.drm.QueueTable(ctx)
			for _, task := range c.drm.Done(remaining, table) {
				delete(inFlight, task.JobID)
				wg.Add(1)
				go func(task *drm.Task) {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()

					record, err := c.drm.Accounting(ctx, task)
					if err != nil {
						c.log.Errorf("accounting retrieval for job %s failed: %v", task.JobID, err)
					}
					results <- Result{Task: task, Record: record, Err: err}
				}(task)
			}

			if len(inFlight) == 0 {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return results
}
