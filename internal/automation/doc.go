// Package automation schedules timed text commands into on-screen regions.
//
// Each instance owns two cadences. A Supervisor runs one scheduling unit per
// active instance; units fire due cadences through an Executor, and every
// device interaction across all units is serialized by a single Gate.
//
// Lifecycle per instance:
//
//	Stopped --Start--> Running <--Pause--> Paused
//	Running/Paused --Stop--> Stopped
package automation
