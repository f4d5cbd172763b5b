// Package run coordinates a validation run over the files of a
// mapping.Store.
//
// A Controller moves through idle, pending, complete and failed. A run is
// started with RunValidation, which snapshots the store and hands it to a
// Validator: either local rule evaluation or a remote run backend that is
// polled until it reports a terminal status.
//
// Every run owns a scope. Resetting, adding files or closing the controller
// cancels the active scope, and a result is only applied while the scope
// that produced it is still the active one. A late poll response for an
// abandoned run can therefore never change the state of a newer run.
package run
