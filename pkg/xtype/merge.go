package xtype

// The TypeInfo of a relational type is derived from the infos of its two
// branches. A branch without info leaves the result incomplete.

func (e *Engine) branchInfos(s *session, h, l, r Handle) (*TypeInfo, *TypeInfo, *TypeInfo) {
	li, ri := e.ensure(s, l), e.ensure(s, r)
	info := newTypeInfo(h)
	if li == nil || ri == nil {
		info.Progress = Incomplete
		return info, li, ri
	}
	info.Progress = li.Progress.worst(ri.Progress)
	if li.Class == ri.Class {
		info.Class = li.Class
		info.Format = li.Format
	} else {
		info.Format = FormatInterface
	}
	info.Access = li.Access
	if ri.Access < info.Access {
		info.Access = ri.Access
	}
	return info, li, ri
}

// unionInfo keeps the members both branches have, preferring the left
// chain, and the parameters both branches bind.
func (e *Engine) unionInfo(s *session, h Handle, n Union) *TypeInfo {
	info, li, ri := e.branchInfos(s, h, n.Left, n.Right)
	if li == nil || ri == nil {
		return info
	}
	for name, lp := range li.Params {
		rp, ok := ri.Params[name]
		if !ok {
			continue
		}
		info.Params[name] = e.mergeParam(lp, rp, TagUnion)
	}
	for key, m := range li.Methods {
		if _, ok := ri.Methods[key]; ok {
			info.Methods[key] = m
		}
	}
	for name, p := range li.Properties {
		if _, ok := ri.Properties[name]; ok {
			info.Properties[name] = p
		}
	}
	info.Extended = li.Extended.intersect(ri.Extended)
	info.Implemented = li.Implemented.intersect(ri.Implemented)
	info.Incorporated = li.Incorporated.intersect(ri.Incorporated)
	info.Implicit = li.Implicit.intersect(ri.Implicit)
	return info
}

// intersectionInfo has every member of either branch; the left branch
// wins when both have one.
func (e *Engine) intersectionInfo(s *session, h Handle, n Intersection) *TypeInfo {
	info, li, ri := e.branchInfos(s, h, n.Left, n.Right)
	if li == nil || ri == nil {
		return info
	}
	for name, rp := range ri.Params {
		info.Params[name] = rp
	}
	for name, lp := range li.Params {
		if rp, ok := ri.Params[name]; ok {
			info.Params[name] = e.mergeParam(lp, rp, TagIntersection)
		} else {
			info.Params[name] = lp
		}
	}
	for key, m := range ri.Methods {
		info.Methods[key] = m
	}
	for key, m := range li.Methods {
		info.Methods[key] = m
	}
	for name, p := range ri.Properties {
		info.Properties[name] = p
	}
	for name, p := range li.Properties {
		info.Properties[name] = p
	}
	info.Extended = li.Extended.union(ri.Extended)
	info.Implemented = li.Implemented.union(ri.Implemented)
	info.Incorporated = li.Incorporated.union(ri.Incorporated)
	info.Implicit = li.Implicit.union(ri.Implicit)
	return info
}

// differenceInfo keeps the members of the left branch that the right
// branch lacks.
func (e *Engine) differenceInfo(s *session, h Handle, n Difference) *TypeInfo {
	info, li, ri := e.branchInfos(s, h, n.Left, n.Right)
	if li == nil || ri == nil {
		return info
	}
	info.Class = ""
	info.Format = FormatInterface
	for name, p := range li.Params {
		info.Params[name] = p
	}
	for key, m := range li.Methods {
		if _, ok := ri.Methods[key]; !ok {
			info.Methods[key] = m
		}
	}
	for name, p := range li.Properties {
		if _, ok := ri.Properties[name]; !ok || p.IsTypeParam() {
			info.Properties[name] = p
		}
	}
	info.Implemented.addAll(li.Implemented)
	for id := range ri.Implemented {
		delete(info.Implemented, id)
	}
	return info
}

func (e *Engine) mergeParam(lp, rp ParamInfo, tag Tag) ParamInfo {
	out := lp
	if lp.Constraint != rp.Constraint && lp.Constraint != NoHandle && rp.Constraint != NoHandle {
		out.Constraint = NewRelational(e.arena, tag, lp.Constraint, rp.Constraint)
	}
	la, ra := lp.Type(), rp.Type()
	if la != ra && la != NoHandle && ra != NoHandle {
		out.Actual = NewRelational(e.arena, tag, la, ra)
	}
	return out
}
