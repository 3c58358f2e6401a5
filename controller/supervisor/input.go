// Copyright (C) 2025 doomcode
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package supervisor

import (
	"context"
	"io"
	"time"

	"github.com/doomcode/relay/internal/metrics"
)

// primeDelay is the pause after the ESC priming byte on the bridge backend,
// before typewriting begins.
const primeDelay = 50 * time.Millisecond

// typewriteDelay is the default per-code-point delay under StyleTypewrite.
const typewriteDelay = 5 * time.Millisecond

// forceSubmitGap separates the CR and LF bytes of a force-submit.
const forceSubmitGap = 10 * time.Millisecond

func enterSuffix(mode EnterMode) []byte {
	switch mode {
	case EnterLF:
		return []byte{'\n'}
	case EnterCRLF:
		return []byte{'\r', '\n'}
	default:
		return []byte{'\r'}
	}
}

// InputWriter performs a single style of prompt delivery into the
// subprocess's PTY, pacing bytes with the given clock. The supervisor owns
// one writer and serializes all injection through it: §5's "input
// injection goes through a single writer".
type InputWriter struct {
	w         io.Writer
	isBridge  bool
	style     InputStyle
	enterMode EnterMode
	sleep     func(context.Context, time.Duration) error
}

// NewInputWriter builds a writer targeting w (the PTY master), configured
// for the given backend's default style, overridable by the caller.
func NewInputWriter(w io.Writer, isBridge bool, enterMode EnterMode) *InputWriter {
	style := StyleLineWrite
	if isBridge {
		style = StyleTypewrite
	}
	return &InputWriter{
		w:         w,
		isBridge:  isBridge,
		style:     style,
		enterMode: enterMode,
		sleep:     ctxSleep,
	}
}

// SetStyle overrides the input style the constructor picked from the backend.
func (iw *InputWriter) SetStyle(style InputStyle) { iw.style = style }

// Send delivers prompt to the subprocess using the writer's configured
// style.
func (iw *InputWriter) Send(ctx context.Context, prompt string) error {
	if iw.style == StyleTypewrite {
		return iw.typewrite(ctx, prompt)
	}
	return iw.lineWrite(prompt)
}

func (iw *InputWriter) lineWrite(prompt string) error {
	payload := append([]byte(prompt), enterSuffix(iw.enterMode)...)
	n, err := iw.w.Write(payload)
	metrics.PTYBytes.WithLabelValues("write").Add(float64(n))
	metrics.GetGlobalCollector().RecordPTYIO(false, n)
	return err
}

// typewrite sends an ESC priming byte (bridge backend only), waits, emits
// the payload one code point at a time, then force-submits both CR and LF
// separated by a short gap so submission succeeds regardless of the
// assistant's chosen line discipline.
func (iw *InputWriter) typewrite(ctx context.Context, prompt string) error {
	if iw.isBridge {
		if _, err := iw.w.Write([]byte{0x1b}); err != nil {
			return err
		}
		if err := iw.sleep(ctx, primeDelay); err != nil {
			return err
		}
	}

	for _, r := range prompt {
		if _, err := iw.w.Write([]byte(string(r))); err != nil {
			return err
		}
		if err := iw.sleep(ctx, typewriteDelay); err != nil {
			return err
		}
	}

	if _, err := iw.w.Write([]byte{'\r'}); err != nil {
		return err
	}
	if err := iw.sleep(ctx, forceSubmitGap); err != nil {
		return err
	}
	_, err := iw.w.Write([]byte{'\n'})
	return err
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
