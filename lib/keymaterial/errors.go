/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package keymaterial

// DecryptionError indicates that an encrypted private key could not be
// decrypted. The message deliberately carries no detail about the key
// material itself.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return "failed to decrypt private key: password may be incorrect"
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// FormatError indicates key or certificate bytes that did not parse as any
// supported encoding.
type FormatError struct {
	What string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return "malformed " + e.What + ": " + e.Err.Error()
	}
	return "malformed " + e.What
}

func (e *FormatError) Unwrap() error { return e.Err }
