// Package mediatool builds ffmpeg argument lists and runs external commands.
//
// Every command is an argument slice; nothing goes through a shell. The Runner
// interface lets stages be tested against recorded invocations instead of a
// real ffmpeg.
package mediatool
