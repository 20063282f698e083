// Package intel implements the covert-intelligence and outcome model: target
// selection, preparation parameters, plan success rate, interrogation, internal
// investigation and information diffusion inside a gang.
//
// Functions here operate on one gang's member records and hold no state of their
// own. Callers hold the gang's mutex for the duration of every call that takes
// member records, and pass the *rand.Rand of the goroutine doing the work.
//
// Every probability-like field (knowledge, suspicion, misinformation) is clamped
// to [0, 1] after each update.
package intel
