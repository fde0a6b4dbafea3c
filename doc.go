// Package zoe implements a resumable, multi-slice HTTP(S)/FILE download
// engine: a slice planner, a bounded-parallelism scheduler, a per-slice
// worker state machine, crash-safe index persistence, a bounded disk
// write-back cache, and an integrity verification pipeline, all driven
// through a Stopped/Downloading/Paused Session lifecycle.
//
// A typical library use:
//
//	s := zoe.NewSession(zoe.DefaultConfig())
//	fut := s.Start(url, targetPath, onResult, onProgress, onSpeed)
//	code := fut.Wait()
package zoe
