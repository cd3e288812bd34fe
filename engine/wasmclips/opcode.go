package wasmclips

import "strconv"

// opcode selects the Native method clips_dispatch runs. The numbering is
// shared with the guest shim; append only.
type opcode uint32

const (
	opCreateEnvironment opcode = iota
	opDestroyEnvironment
	opBuild
	opEval
	opLoad
	opBload
	opSave
	opBsave
	opBatchStar
	opReset
	opClear
	opRun
	opAddUDF
	opFunctionCall
	opSetErrorValue
	opGetErrorValue
	opClearErrorValue
	opSetEvaluationError
	opGetEvaluationError
	opAssertString
	opRetract
	opRetainFact
	opReleaseFact
	opFactIndex
	opFactExistp
	opFactTemplate
	opFactImplied
	opGetFactSlot
	opFactSlotNames
	opFacts
	opFactPPForm
	opCreateFactBuilder
	opFBPutSlot
	opFBAssert
	opFBDispose
	opFBError
	opTemplates
	opTemplateSlotNames
	opMakeInstance
	opFindInstance
	opRetainInstance
	opReleaseInstance
	opValidInstanceAddress
	opInstanceName
	opInstanceClass
	opDirectGetSlot
	opDirectPutSlot
	opUnmakeInstance
	opSend
	opInstances
	opInstancePPForm
	opAddRouter
	opDeleteRouter
	opActivateRouter
	opDeactivateRouter
	opWriteString
	opWriteValue
	opReadRouter
	opUnreadRouter
	opRules
	opActivations
	opGetDefglobalValue
	opSetDefglobalValue
	opLoadFacts
	opLoadFactsFromString
	opSaveFacts
	opLoadInstances
	opLoadInstancesFromString
	opRestoreInstances
	opRestoreInstancesFromString
	opSaveInstances
	opBinaryLoadInstances
	opBinarySaveInstances
	opClasses
	opClassAbstract
	opClassSlots
	opClassSuperclasses
	opRefreshAgenda
	opClearAgenda
	opGetStrategy
	opSetStrategy
	opGetSalienceEvaluation
	opSetSalienceEvaluation
	opUndefine
	opModules
	opCurrentModule
	opSetCurrentModule
	opFocus
	opGetFocus
	opClearFocusStack
)

var opcodeNames = [...]string{
	opCreateEnvironment:          "create-environment",
	opDestroyEnvironment:         "destroy-environment",
	opBuild:                      "build",
	opEval:                       "eval",
	opLoad:                       "load",
	opBload:                      "bload",
	opSave:                       "save",
	opBsave:                      "bsave",
	opBatchStar:                  "batch-star",
	opReset:                      "reset",
	opClear:                      "clear",
	opRun:                        "run",
	opAddUDF:                     "add-udf",
	opFunctionCall:               "function-call",
	opSetErrorValue:              "set-error-value",
	opGetErrorValue:              "get-error-value",
	opClearErrorValue:            "clear-error-value",
	opSetEvaluationError:         "set-evaluation-error",
	opGetEvaluationError:         "get-evaluation-error",
	opAssertString:               "assert-string",
	opRetract:                    "retract",
	opRetainFact:                 "retain-fact",
	opReleaseFact:                "release-fact",
	opFactIndex:                  "fact-index",
	opFactExistp:                 "fact-existp",
	opFactTemplate:               "fact-template",
	opFactImplied:                "fact-implied",
	opGetFactSlot:                "get-fact-slot",
	opFactSlotNames:              "fact-slot-names",
	opFacts:                      "facts",
	opFactPPForm:                 "fact-ppform",
	opCreateFactBuilder:          "create-fact-builder",
	opFBPutSlot:                  "fb-put-slot",
	opFBAssert:                   "fb-assert",
	opFBDispose:                  "fb-dispose",
	opFBError:                    "fb-error",
	opTemplates:                  "templates",
	opTemplateSlotNames:          "template-slot-names",
	opMakeInstance:               "make-instance",
	opFindInstance:               "find-instance",
	opRetainInstance:             "retain-instance",
	opReleaseInstance:            "release-instance",
	opValidInstanceAddress:       "valid-instance-address",
	opInstanceName:               "instance-name",
	opInstanceClass:              "instance-class",
	opDirectGetSlot:              "direct-get-slot",
	opDirectPutSlot:              "direct-put-slot",
	opUnmakeInstance:             "unmake-instance",
	opSend:                       "send",
	opInstances:                  "instances",
	opInstancePPForm:             "instance-ppform",
	opAddRouter:                  "add-router",
	opDeleteRouter:               "delete-router",
	opActivateRouter:             "activate-router",
	opDeactivateRouter:           "deactivate-router",
	opWriteString:                "write-string",
	opWriteValue:                 "write-value",
	opReadRouter:                 "read-router",
	opUnreadRouter:               "unread-router",
	opRules:                      "rules",
	opActivations:                "activations",
	opGetDefglobalValue:          "get-defglobal-value",
	opSetDefglobalValue:          "set-defglobal-value",
	opLoadFacts:                  "load-facts",
	opLoadFactsFromString:        "load-facts-from-string",
	opSaveFacts:                  "save-facts",
	opLoadInstances:              "load-instances",
	opLoadInstancesFromString:    "load-instances-from-string",
	opRestoreInstances:           "restore-instances",
	opRestoreInstancesFromString: "restore-instances-from-string",
	opSaveInstances:              "save-instances",
	opBinaryLoadInstances:        "binary-load-instances",
	opBinarySaveInstances:        "binary-save-instances",
	opClasses:                    "classes",
	opClassAbstract:              "class-abstract",
	opClassSlots:                 "class-slots",
	opClassSuperclasses:          "class-superclasses",
	opRefreshAgenda:              "refresh-agenda",
	opClearAgenda:                "clear-agenda",
	opGetStrategy:                "get-strategy",
	opSetStrategy:                "set-strategy",
	opGetSalienceEvaluation:      "get-salience-evaluation",
	opSetSalienceEvaluation:      "set-salience-evaluation",
	opUndefine:                   "undefine",
	opModules:                    "modules",
	opCurrentModule:              "current-module",
	opSetCurrentModule:           "set-current-module",
	opFocus:                      "focus",
	opGetFocus:                   "get-focus",
	opClearFocusStack:            "clear-focus-stack",
}

func (o opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}
