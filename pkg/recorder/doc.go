// Package recorder persists model audio from a geminilive session as WAV
// files.
//
// A Recorder is an observer: subscribe it to a session and every
// reassembled audio buffer is written to a Sink, optionally resampled.
//
//	rec := recorder.New(recorder.NewLocalSink("out"), recorder.WithSampleRate(16000))
//	session.Subscribe(geminilive.EventAudioBufferReceived, rec.Observe)
//
// Objects are named "<session id>/<sequence>.wav". Sinks are provided for the
// local filesystem and for S3-compatible object stores.
package recorder
