// Package sequence turns configured action lists into typed actions and runs
// them against the hardware registry.
//
// A Sequence is an ordered list of Action values. Action is a closed set:
// MotorAction, RelayAction, LightAction, AudioAction, SleepAction and
// InvalidAction. Build never fails; an action whose type is unknown or whose
// parameters are malformed becomes an InvalidAction, which the Engine skips
// and reports when the sequence runs.
//
// # Running
//
// Engine.Run executes actions strictly in list order. Before each action it
// checks the RunContext for cancellation and the elapsed time against the
// run budget; when either trips, the remaining actions are skipped and the
// registry is forced to its safe state. A failing action is recorded and
// skipped. If it targeted the actuator the actuator is stopped; if it
// targeted a relay that relay is switched off.
//
// Blocking behaviour per action:
//
//	motor forward/reverse  blocks for the duration
//	motor stop             immediate
//	relay on/off           immediate
//	light color/on/off     immediate
//	light flash            blocks for count x interval unless async
//	audio play             returns at once unless wait
//	sleep                  blocks, wakes early on cancellation
//
// # Thread Safety
//
// An Engine may be shared, but the caller is expected to run one sequence at
// a time. RunContext.Cancel may be called from any goroutine.
package sequence
