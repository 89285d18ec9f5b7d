//go:build windows

package beep

// No audio playback on Windows - the alarm stays visual only.

func Init()      {}
func PlayAlarm() {}
