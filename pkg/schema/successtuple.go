// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"encoding/json"
	"fmt"
)

// SuccessTuple carries the outcome of a pipe operation: a flag and a
// human-readable message. It serialises as [bool, string].
type SuccessTuple struct {
	Ok  bool
	Msg string
}

func Succeed(format string, v ...interface{}) SuccessTuple {
	return SuccessTuple{Ok: true, Msg: fmt.Sprintf(format, v...)}
}

func Fail(format string, v ...interface{}) SuccessTuple {
	return SuccessTuple{Ok: false, Msg: fmt.Sprintf(format, v...)}
}

// FailErr wraps an error into a failing tuple, preserving the message.
func FailErr(err error) SuccessTuple {
	if err == nil {
		return SuccessTuple{Ok: false, Msg: "unknown failure"}
	}
	return SuccessTuple{Ok: false, Msg: err.Error()}
}

func (st SuccessTuple) String() string {
	if st.Ok {
		return "success: " + st.Msg
	}
	return "failure: " + st.Msg
}

func (st SuccessTuple) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{st.Ok, st.Msg})
}

func (st *SuccessTuple) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &st.Ok); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &st.Msg)
}
